package ot

import "fmt"

// Engine rebases an operation written against an older document version
// onto the latest state.
type Engine interface {
	// Rebase transforms op, which applies to the document as it stood at
	// version, against every history entry recorded since.
	Rebase(op Operation, version int, history []Operation) (Operation, error)
}

// JupiterEngine transforms the operation sequentially against each
// history entry it has not seen.
type JupiterEngine struct{}

func (e *JupiterEngine) Rebase(op Operation, version int, history []Operation) (Operation, error) {
	if version < 0 || version > len(history) {
		return Operation{}, fmt.Errorf("invalid version %d (history len %d)", version, len(history))
	}

	rebased := op
	for i := version; i < len(history); i++ {
		var err error
		rebased, _, err = Transform(rebased, history[i])
		if err != nil {
			return Operation{}, fmt.Errorf("transform against history[%d]: %w", i, err)
		}
	}
	return rebased, nil
}
