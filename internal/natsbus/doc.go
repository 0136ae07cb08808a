// Package natsbus carries window traffic over NATS core pub/sub.
//
// Every window listens on its own subject:
//
//	{namespace}.wnd.main-app                 the main application
//	{namespace}.wnd.worker-window.{windowID} one hosted worker window
//	{namespace}.wnd.{endpoint}               any other endpoint (fallback)
//
// Messages are msgpack-encoded with the wire package. NATS core delivery is
// at-most-once, which matches what the bus expects from a transport.
//
// Worker windows are processes, not iframes: WindowFactory sends an open request
// on {namespace}.window.open and a Host answers by starting a Runtime for the new
// window. Closing publishes on {namespace}.window.close.{windowID}.
package natsbus
