package ot

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Component is a single step in an operation.
// Exactly one field should be set. Lengths count runes, matching the
// character offsets the document SDK reports.
type Component struct {
	Retain int    `json:"retain,omitempty"` // keep N chars unchanged
	Insert string `json:"insert,omitempty"` // insert text at cursor
	Delete int    `json:"delete,omitempty"` // remove N chars at cursor
}

func (c Component) IsRetain() bool { return c.Retain > 0 && c.Insert == "" && c.Delete == 0 }
func (c Component) IsInsert() bool { return c.Insert != "" }
func (c Component) IsDelete() bool { return c.Delete > 0 && c.Insert == "" }

// Operation is a sequence of components that transforms a document.
// Components are applied left-to-right, advancing a cursor through the input.
type Operation struct {
	Ops []Component `json:"ops"`
}

// RuneLen returns the length of s in characters.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// BaseLen returns the expected input document length.
func (op Operation) BaseLen() int {
	n := 0
	for _, c := range op.Ops {
		if c.IsRetain() {
			n += c.Retain
		} else if c.IsDelete() {
			n += c.Delete
		}
	}
	return n
}

// TargetLen returns the document length after the operation is applied.
func (op Operation) TargetLen() int {
	n := 0
	for _, c := range op.Ops {
		if c.IsRetain() {
			n += c.Retain
		} else if c.IsInsert() {
			n += RuneLen(c.Insert)
		}
	}
	return n
}

// IsNoop returns true if the operation makes no changes.
func (op Operation) IsNoop() bool {
	for _, c := range op.Ops {
		if c.IsInsert() || c.IsDelete() {
			return false
		}
	}
	return true
}

// Apply applies the operation to a document string.
func Apply(doc string, op Operation) (string, error) {
	runes := []rune(doc)
	if len(runes) != op.BaseLen() {
		return "", fmt.Errorf("document length %d != operation base length %d", len(runes), op.BaseLen())
	}
	var b strings.Builder
	pos := 0
	for _, c := range op.Ops {
		switch {
		case c.IsRetain():
			b.WriteString(string(runes[pos : pos+c.Retain]))
			pos += c.Retain
		case c.IsInsert():
			b.WriteString(c.Insert)
		case c.IsDelete():
			pos += c.Delete
		}
	}
	return b.String(), nil
}

// NewInsert creates an operation that inserts text at pos in a document of docLen.
func NewInsert(pos int, text string, docLen int) Operation {
	return NewReplace(pos, 0, text, docLen)
}

// NewDelete creates an operation that deletes count chars at pos in a document of docLen.
func NewDelete(pos, count, docLen int) Operation {
	return NewReplace(pos, count, "", docLen)
}

// NewReplace creates an operation that removes count chars at pos and
// inserts text in their place, in a document of docLen.
func NewReplace(pos, count int, text string, docLen int) Operation {
	var ops []Component
	if pos > 0 {
		ops = append(ops, Component{Retain: pos})
	}
	if count > 0 {
		ops = append(ops, Component{Delete: count})
	}
	if text != "" {
		ops = append(ops, Component{Insert: text})
	}
	if remaining := docLen - pos - count; remaining > 0 {
		ops = append(ops, Component{Retain: remaining})
	}
	return Operation{Ops: ops}
}

// TransformIndex maps a character offset in the operation's input onto its
// output. An insert exactly at pos moves pos past the inserted text only
// when stickRight is set. An offset inside a deleted span collapses onto
// the start of the deletion.
func TransformIndex(pos int, op Operation, stickRight bool) int {
	src, dst := 0, 0
	for _, c := range op.Ops {
		switch {
		case c.IsRetain():
			if pos < src+c.Retain {
				return dst + (pos - src)
			}
			src += c.Retain
			dst += c.Retain
		case c.IsInsert():
			if pos > src || (pos == src && stickRight) {
				dst += RuneLen(c.Insert)
			}
		case c.IsDelete():
			if pos < src+c.Delete {
				return dst
			}
			src += c.Delete
		}
	}
	return dst + (pos - src)
}

// TransformIndexAll maps pos through a sequence of operations.
func TransformIndexAll(pos int, history []Operation, stickRight bool) int {
	for _, op := range history {
		pos = TransformIndex(pos, op, stickRight)
	}
	return pos
}
