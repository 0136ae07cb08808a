package types

// MonitorState is the state of the app-side heartbeat monitor.
//
//	MonitorIdle → MonitorRunning → MonitorIdle
type MonitorState int

const (
	// MonitorIdle means no heartbeat ticker is armed.
	MonitorIdle MonitorState = iota

	// MonitorRunning means heartbeats are sent on every tick.
	MonitorRunning
)

// String returns the string representation of the state.
func (s MonitorState) String() string {
	switch s {
	case MonitorIdle:
		return "Idle"
	case MonitorRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// WorkerState is the state of the embedded worker window as seen by its manager.
//
//	WorkerAbsent → WorkerCreating → WorkerReady → WorkerAbsent (delete or recreate)
type WorkerState int

const (
	// WorkerAbsent means no window handle exists.
	WorkerAbsent WorkerState = iota

	// WorkerCreating means a window was opened and the creation failsafe is armed.
	WorkerCreating

	// WorkerReady means the window announced readiness.
	WorkerReady
)

// String returns the string representation of the state.
func (s WorkerState) String() string {
	switch s {
	case WorkerAbsent:
		return "Absent"
	case WorkerCreating:
		return "Creating"
	case WorkerReady:
		return "Ready"
	default:
		return "Unknown"
	}
}
