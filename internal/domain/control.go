package domain

// Control frames share the envelope wire shape but never leave the hop
// between a client and the server.
const (
	ControlPing  = "ping"
	ControlPong  = "pong"
	ControlError = "error"
)

// ControlFrame is a keepalive or error notice exchanged with the server.
type ControlFrame struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
	// Ref echoes the type of the envelope that caused an error.
	Ref string `json:"ref,omitempty"`
}

// IsControl reports whether t names a control frame rather than an envelope.
func IsControl(t string) bool {
	switch t {
	case ControlPing, ControlPong, ControlError:
		return true
	}
	return false
}
