package engine

// Command resumes a paused engine.
type Command int

const (
	// Step processes exactly the paused tick, then pauses again before the
	// next one.
	Step Command = iota + 1
	// Continue resumes normal advancement until the next breakpoint or the
	// chunk end.
	Continue
)

// Controller receives breakpoint suspensions. The engine blocks in PausedAt
// until the controller decides; whatever transport delivers that decision
// (terminal, in-world chat, IPC) is the controller's business.
type Controller interface {
	PausedAt(tick int, reason string) Command
}

type autoContinue struct{}

func (autoContinue) PausedAt(int, string) Command { return Continue }

// AutoContinue never pauses; it is the default for non-interactive runs.
var AutoContinue Controller = autoContinue{}

// ControllerFunc adapts a function to the Controller interface.
type ControllerFunc func(tick int, reason string) Command

func (f ControllerFunc) PausedAt(tick int, reason string) Command { return f(tick, reason) }
