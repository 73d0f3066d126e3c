package memdoc

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/alimasry/go-office-kit/ot"
	"github.com/alimasry/go-office-kit/sdk"
	"github.com/alimasry/go-office-kit/store"
)

const (
	kindInsert = "insert"
	kindDelete = "delete"
	kindFormat = "format"
)

// revision is a pending tracked change. pos and length address the text
// as it stood at version; deletions have no length and keep the removed
// text instead.
type revision struct {
	kind      string
	version   int
	pos       int
	length    int
	text      string
	font      string
	prevFonts []string
	date      time.Time
	author    string
}

func revisionFromStore(r store.Revision) *revision {
	return &revision{
		kind:      r.Kind,
		version:   r.Version,
		pos:       r.Pos,
		length:    r.Length,
		text:      r.Text,
		font:      r.Font,
		prevFonts: slices.Clone(r.PrevFonts),
		date:      r.Date,
		author:    r.Author,
	}
}

func (r *revision) toStore() store.Revision {
	return store.Revision{
		Kind:      r.kind,
		Version:   r.version,
		Pos:       r.pos,
		Length:    r.length,
		Text:      r.text,
		Font:      r.font,
		PrevFonts: slices.Clone(r.prevFonts),
		Date:      r.date,
		Author:    r.author,
	}
}

func (d *Document) storeRevisions() []store.Revision {
	out := make([]store.Revision, len(d.revs))
	for i, r := range d.revs {
		out[i] = r.toStore()
	}
	return out
}

// lenAt returns the document length at version.
func (d *Document) lenAt(version int) (int, bool) {
	h := d.doc.History
	switch {
	case version < 0 || version > len(h):
		return 0, false
	case version == len(h):
		return d.doc.Len(), true
	}
	return h[version].BaseLen(), true
}

// spanOf maps r onto the current text.
func (d *Document) spanOf(r *revision) span {
	later := d.doc.Since(r.version)
	start := ot.TransformIndexAll(r.pos, later, true)
	end := ot.TransformIndexAll(r.pos+r.length, later, false)
	return span{start, max(start, end)}
}

// revisionAt resolves a 1-based index against the live list.
func (d *Document) revisionAt(index int) (*revision, error) {
	if index < 1 || index > len(d.revs) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrRevisionGone, index, len(d.revs))
	}
	return d.revs[index-1], nil
}

func (d *Document) removeRevision(index int) {
	d.revs = slices.Delete(d.revs, index-1, index)
}

func (d *Document) accept(index int) error {
	if d.readOnly {
		return ErrReadOnly
	}
	if _, err := d.revisionAt(index); err != nil {
		return err
	}
	d.removeRevision(index)
	return nil
}

// reject undoes the revision at index. Text changes are inverted against
// the version they were recorded at and rebased over everything since.
func (d *Document) reject(index int) error {
	if d.readOnly {
		return ErrReadOnly
	}
	r, err := d.revisionAt(index)
	if err != nil {
		return err
	}

	switch r.kind {
	case kindInsert, kindDelete:
		n, ok := d.lenAt(r.version)
		if !ok || r.pos+r.length > n {
			return fmt.Errorf("%w: v%d is not in the history", ErrRevisionGone, r.version)
		}
		undo := ot.NewInsert(r.pos, r.text, n)
		if r.kind == kindInsert {
			undo = ot.NewDelete(r.pos, r.length, n)
		}
		if err := d.apply(undo, r.version); err != nil {
			return fmt.Errorf("reject %s revision %d: %w", r.kind, index, err)
		}
	case kindFormat:
		s := d.spanOf(r)
		for i := s.start; i < s.end && i-s.start < len(r.prevFonts); i++ {
			d.fonts[i] = r.prevFonts[i-s.start]
		}
	default:
		return fmt.Errorf("reject revision %d: unknown kind %q", index, r.kind)
	}
	d.removeRevision(index)
	return nil
}

type revisionList struct {
	d *Document
}

func (l revisionList) Count(context.Context) (int, error) {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	return len(l.d.revs), nil
}

// Item returns a handle to the revision currently at index. The handle
// keeps the index, not the revision: once an earlier revision is resolved
// it addresses whatever has moved into that slot.
func (l revisionList) Item(_ context.Context, index int) (sdk.Revision, error) {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	if _, err := l.d.revisionAt(index); err != nil {
		return nil, err
	}
	return revisionHandle{d: l.d, index: index}, nil
}

type revisionHandle struct {
	d     *Document
	index int
}

func (h revisionHandle) Date(context.Context) (time.Time, error) {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	r, err := h.d.revisionAt(h.index)
	if err != nil {
		return time.Time{}, err
	}
	return r.date, nil
}

// Range reports the revision's current span. Deleted text is no longer in
// the document, so a deletion has an empty span and no text.
func (h revisionHandle) Range(context.Context) (sdk.Range, error) {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	r, err := h.d.revisionAt(h.index)
	if err != nil {
		return sdk.Range{}, err
	}
	s := h.d.spanOf(r)
	return sdk.Range{Start: s.start, End: s.end, Text: h.d.textOf(s)}, nil
}

func (h revisionHandle) Accept(context.Context) error {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	return h.d.accept(h.index)
}

func (h revisionHandle) Reject(context.Context) error {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	return h.d.reject(h.index)
}
