// Package term defines the presentation surface the orchestrators call out
// to: selection and confirmation prompts, progress reporting, append-only
// logging, and terminal notifications. Implementations may be interactive
// (Console) or scripted (Script).
package term

// Level classifies a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// UI is the only contract the orchestrators require from the hosting
// environment. Every method is synchronous; Select, Choose, Confirm and
// Input block until the user answers or cancels.
type UI interface {
	// Select prompts for a single choice from options. When preselect
	// matches an option it is highlighted as the initial cursor position
	// but not forced.
	Select(title string, options []string, preselect string) (string, error)

	// Choose prompts for one of a small set of labeled actions.
	Choose(title string, options []string) (string, error)

	// Confirm asks a yes/no question and reports the answer.
	Confirm(title string) (bool, error)

	// Input prompts for a single line of free text.
	Input(title string) (string, error)

	// Progress opens a progress-reporting scope for a multi-step operation.
	Progress(title string) Progress

	// Log appends one line to the host's output surface.
	Log(line string)

	// Notify raises a terminal notification at the given level.
	Notify(level Level, message string)
}

// Progress reports incremental completion of a long-running operation.
type Progress interface {
	// Step records progress as a percentage in [0,100] with a description.
	Step(percent int, message string)

	// Done closes the scope.
	Done()
}
