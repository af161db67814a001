package pipeline

import "fmt"

// ProcessingError is returned when a stage fails a document.
type ProcessingError struct {
	Stage string
	Tier  Tier
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s stage %q: %v", e.Tier, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ScriptError is a failed script block. Block counts from zero in document order.
type ScriptError struct {
	Document string
	Block    int
	Err      error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: script block %d: %v", e.Document, e.Block, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }
