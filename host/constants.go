package host

// =============================================================================
// Engine Defaults
// =============================================================================

// DefaultCancelOpcode is the opcode of the interrupt message sent to the
// device when an in-flight message is cancelled.
const DefaultCancelOpcode uint8 = 0x7F

// DefaultDevDir is the directory watched for device nodes on Linux.
const DefaultDevDir = "/dev"

// maxWaitEvents bounds the events collected per platform wait.
const maxWaitEvents = 16

// =============================================================================
// Connection State
// =============================================================================

// State is the connection state of the engine.
type State int32

// Connection states.
const (
	StateDisconnected State = iota // No device open, none expected
	StateOpening                   // Waiting for a matching device to arrive
	StateOpen                      // Device open and serviced
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// =============================================================================
// Command Envelopes
// =============================================================================

// commandKind tags a command envelope crossing into the engine goroutine.
type commandKind uint8

const (
	cmdOpen commandKind = iota
	cmdClose
	cmdSend
	cmdCancel
	cmdQuit
	cmdBeginEmulation
	cmdEndEmulation
)

// String returns the command name.
func (k commandKind) String() string {
	switch k {
	case cmdOpen:
		return "open"
	case cmdClose:
		return "close"
	case cmdSend:
		return "send"
	case cmdCancel:
		return "cancel"
	case cmdQuit:
		return "quit"
	case cmdBeginEmulation:
		return "begin-emulation"
	case cmdEndEmulation:
		return "end-emulation"
	default:
		return "unknown"
	}
}
