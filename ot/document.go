package ot

import "fmt"

// Document is a text buffer with its full operation history.
// Version counts applied non-noop operations; History[v] moved the
// document from version v to v+1.
type Document struct {
	Content string
	Version int
	History []Operation
}

// NewDocument creates a new document with the given initial content.
func NewDocument(content string) *Document {
	return &Document{Content: content}
}

// Len returns the document length in characters.
func (d *Document) Len() int {
	return RuneLen(d.Content)
}

// Apply applies an operation to the document, appending it to history.
func (d *Document) Apply(op Operation) error {
	if op.IsNoop() {
		return nil
	}
	result, err := Apply(d.Content, op)
	if err != nil {
		return fmt.Errorf("apply to document v%d: %w", d.Version, err)
	}
	d.Content = result
	d.Version++
	d.History = append(d.History, op)
	return nil
}

// ApplyAt rebases op from version onto the current state and applies it.
// It returns the operation as applied.
func (d *Document) ApplyAt(engine Engine, op Operation, version int) (Operation, error) {
	rebased, err := engine.Rebase(op, version, d.History)
	if err != nil {
		return Operation{}, err
	}
	if err := d.Apply(rebased); err != nil {
		return Operation{}, err
	}
	return rebased, nil
}

// Since returns the operations applied after version.
func (d *Document) Since(version int) []Operation {
	if version < 0 || version >= len(d.History) {
		return nil
	}
	return d.History[version:]
}
