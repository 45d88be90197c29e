package ux

// Field is one labelled line of a prompt.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Prompt is a confirmation request shown to the user.
type Prompt struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// DecideFunc receives the user's decision on the supervisor goroutine.
type DecideFunc func(approved bool) error

// Display is the UI collaborator the supervisor and handlers drive.
type Display interface {
	// Idle renders the idle screen.
	Idle()
	// Confirm shows p and arranges for decide to be posted once the user
	// answers. It must not block.
	Confirm(p Prompt, decide DecideFunc)
	// Reset drops volatile UI state, including any open prompt.
	Reset()
}
