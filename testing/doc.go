// Package testing provides test utilities for the ktl window bus.
//
// It follows Go's convention of shipping test helpers in a dedicated package
// (similar to net/http/httptest):
//   - StartEmbeddedNATS: single NATS server with JetStream
//   - CreateJetStreamKV: convenience wrapper for KV bucket creation
//   - Channel, WindowFactory, RecordAPI: in-process fakes of the host collaborators
//   - Clock: a manually advanced clock
//   - NewTestLogger: a types.Logger writing to testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    ktltest "github.com/cortexrd/Knack-Toolkit-Library-sub001/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := ktltest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
