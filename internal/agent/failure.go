package agent

import "fmt"

// Failure is a language-model failure that ends a conversation: a transport
// error, a response without choices, or a model that never issued a usable
// tool call.
type Failure struct {
	Cause error
	// Step is the completion number that failed, starting at 1.
	Step int
}

func (f *Failure) Error() string {
	return fmt.Sprintf("agent failure at step %d: %v", f.Step, f.Cause)
}

func (f *Failure) Unwrap() error { return f.Cause }
