package memdoc

import (
	"time"

	"github.com/alimasry/go-office-kit/sdk"
)

// State is a rendering of a document for display.
type State struct {
	ID        string          `json:"id"`
	Content   string          `json:"content"`
	Version   int             `json:"version"`
	ReadOnly  bool            `json:"readOnly"`
	Tracking  bool            `json:"tracking"`
	Revisions []RevisionState `json:"revisions"`
	Fonts     []FontRun       `json:"fonts"`
	Selection sdk.Range       `json:"selection"`
	Hits      []sdk.Match     `json:"hits,omitempty"`
}

// RevisionState describes one pending revision.
type RevisionState struct {
	Index  int       `json:"index"`
	Kind   string    `json:"kind"`
	Start  int       `json:"start"`
	End    int       `json:"end"`
	Text   string    `json:"text,omitempty"` // removed text, for deletions
	Font   string    `json:"font,omitempty"`
	Date   time.Time `json:"date"`
	Author string    `json:"author,omitempty"`
}

// FontRun is a maximal span of characters sharing a font.
type FontRun struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Font  string `json:"font"`
}

// State snapshots the document.
func (d *Document) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := State{
		ID:        d.id,
		Content:   d.doc.Content,
		Version:   d.doc.Version,
		ReadOnly:  d.readOnly,
		Tracking:  d.track,
		Revisions: make([]RevisionState, len(d.revs)),
		Selection: sdk.Range{Start: d.active.start, End: d.active.end, Text: d.textOf(d.active)},
		Hits:      append([]sdk.Match(nil), d.hits...),
	}
	for i, r := range d.revs {
		s := d.spanOf(r)
		st.Revisions[i] = RevisionState{
			Index:  i + 1,
			Kind:   r.kind,
			Start:  s.start,
			End:    s.end,
			Text:   r.text,
			Font:   r.font,
			Date:   r.date,
			Author: r.author,
		}
	}
	for i, f := range d.fonts {
		if n := len(st.Fonts); n > 0 && st.Fonts[n-1].Font == f {
			st.Fonts[n-1].End = i + 1
			continue
		}
		st.Fonts = append(st.Fonts, FontRun{Start: i, End: i + 1, Font: f})
	}
	return st
}
