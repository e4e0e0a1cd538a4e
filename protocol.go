package main

// State is the headphone connection state reported to clients.
type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateUnknown      State = "unknown"
)

// DefaultEventName is the name carried by change notifications unless the
// config overrides it.
const DefaultEventName = "AUDIO_DEVICE_CHANGED_NOTIFICATION"

// Status is a snapshot of the attached audio outputs.
type Status struct {
	State     State `json:"state"`
	AudioJack bool  `json:"audioJack"` // wired jack or USB headset
	Bluetooth bool  `json:"bluetooth"`
}

// NewStatus derives the state from the attached device types.
func NewStatus(audioJack, bluetooth bool) Status {
	st := Status{State: StateDisconnected, AudioJack: audioJack, Bluetooth: bluetooth}
	if audioJack || bluetooth {
		st.State = StateConnected
	}
	return st
}

// UnknownStatus is reported when the platform cannot be queried.
func UnknownStatus() Status {
	return Status{State: StateUnknown}
}

// Connected reports whether any headphone output is attached.
func (s Status) Connected() bool {
	return s.State == StateConnected
}

// Event is a change notification as delivered by the bridges.
type Event struct {
	Event  string `json:"event"`
	Status Status `json:"status"`
}

// Constants returns the constants table exposed to bridge clients.
func Constants(eventName string) map[string]string {
	return map[string]string{DefaultEventName: eventName}
}

// IPCRequest is sent from the CLI client to the daemon.
type IPCRequest struct {
	Command string `json:"command"` // "status" | "constants" | "subscribe"
}

// IPCResponse is sent from the daemon back to the CLI client. A subscribe
// request is answered with one response per event until the client hangs up.
type IPCResponse struct {
	Status    *Status           `json:"status,omitempty"`
	Event     string            `json:"event,omitempty"`
	Constants map[string]string `json:"constants,omitempty"`
	Error     string            `json:"error,omitempty"`
}
