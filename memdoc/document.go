package memdoc

import (
	"context"
	"slices"
	"sync"
	"time"
	"unicode"

	"github.com/alimasry/go-office-kit/ot"
	"github.com/alimasry/go-office-kit/sdk"
	"github.com/alimasry/go-office-kit/store"
)

type span struct {
	start, end int
}

type docConfig struct {
	author      string
	track       bool
	defaultFont string
	now         func() time.Time
}

// Document is an open document. All methods are safe for concurrent use;
// each call completes its change before returning.
type Document struct {
	mu     sync.Mutex
	id     string
	doc    *ot.Document
	engine ot.Engine
	saved  int // history entries already in the store

	fonts       []string // one per character
	defaultFont string
	author      string
	now         func() time.Time

	readOnly  bool
	track     bool
	revs      []*revision
	bookmarks map[string]*span
	active    span
	view      span
	hits      []sdk.Match
}

func newDocument(info *store.DocumentInfo, history []ot.Operation, cfg docConfig) *Document {
	if len(history) != info.Version {
		log.Warningf("document %q is at v%d but has %d journaled operations", info.ID, info.Version, len(history))
	}
	d := &Document{
		id: info.ID,
		doc: &ot.Document{
			Content: info.Content,
			Version: len(history),
			History: history,
		},
		engine:      &ot.JupiterEngine{},
		saved:       len(history),
		defaultFont: cfg.defaultFont,
		author:      cfg.author,
		now:         cfg.now,
		track:       cfg.track,
		bookmarks:   make(map[string]*span),
	}
	d.fonts = make([]string, d.doc.Len())
	for i := range d.fonts {
		d.fonts[i] = cfg.defaultFont
	}
	for _, r := range info.Revisions {
		if r.Version > len(history) {
			log.Warningf("document %q: dropping revision at v%d past the journal", info.ID, r.Version)
			continue
		}
		d.revs = append(d.revs, revisionFromStore(r))
	}
	return d
}

// ID returns the document's store id.
func (d *Document) ID() string {
	return d.id
}

func (d *Document) SetReadOnly(_ context.Context, readOnly bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readOnly = readOnly
	return nil
}

func (d *Document) TrackRevisions(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.track, nil
}

// Find returns every non-overlapping occurrence of text and marks them as
// hits.
func (d *Document) Find(_ context.Context, text string, caseSensitive bool) ([]sdk.Match, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	needle := []rune(text)
	if len(needle) == 0 {
		d.hits = nil
		return nil, nil
	}
	hay := []rune(d.doc.Content)
	if !caseSensitive {
		needle = foldRunes(needle)
		hay = foldRunes(hay)
	}

	var matches []sdk.Match
	for i := 0; i+len(needle) <= len(hay); {
		if slices.Equal(hay[i:i+len(needle)], needle) {
			matches = append(matches, sdk.Match{Pos: i, Len: len(needle)})
			i += len(needle)
			continue
		}
		i++
	}
	d.hits = matches
	return matches, nil
}

func foldRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func (d *Document) ClearHitHighlight(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hits = nil
	return nil
}

// clamp fits [start, end) inside the document.
func (d *Document) clamp(start, end int) span {
	n := d.doc.Len()
	start = min(max(start, 0), n)
	end = min(max(end, start), n)
	return span{start, end}
}

func (d *Document) textOf(s span) string {
	return string([]rune(d.doc.Content)[s.start:s.end])
}

// SetRange makes [start, end) the active range, clamped to the document.
func (d *Document) SetRange(_ context.Context, start, end int) (sdk.Range, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = d.clamp(start, end)
	return sdk.Range{Start: d.active.start, End: d.active.end, Text: d.textOf(d.active)}, nil
}

func (d *Document) ScrollIntoView(_ context.Context, r sdk.Range) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.view = d.clamp(r.Start, r.End)
	return nil
}

// Selection always returns the cursor; it sits at the end of the active
// range.
func (d *Document) Selection(context.Context) (sdk.Selection, error) {
	return selection{d: d}, nil
}

func (d *Document) DocumentRange(context.Context) (sdk.Range, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sdk.Range{Start: 0, End: d.doc.Len() + 1, Text: d.doc.Content}, nil
}

// SetFontName sets the font of [start, end). With track-changes on, a
// change that alters any character's font is recorded as a format
// revision.
func (d *Document) SetFontName(_ context.Context, start, end int, font string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readOnly {
		return ErrReadOnly
	}
	if start < 0 || end < start || end > d.doc.Len() {
		return ErrBadRange
	}
	prev := slices.Clone(d.fonts[start:end])
	changed := false
	for i := start; i < end; i++ {
		if d.fonts[i] != font {
			d.fonts[i] = font
			changed = true
		}
	}
	if changed && d.track {
		d.revs = append(d.revs, &revision{
			kind:      kindFormat,
			version:   d.doc.Version,
			pos:       start,
			length:    end - start,
			font:      font,
			prevFonts: prev,
			date:      d.stamp(),
			author:    d.author,
		})
	}
	return nil
}

func (d *Document) Revisions(context.Context) (sdk.Revisions, error) {
	return revisionList{d: d}, nil
}

func (d *Document) Bookmarks(context.Context) (sdk.Bookmarks, error) {
	return bookmarkSet{d: d}, nil
}

// WaitSettled returns once earlier calls are visible. Every call applies
// synchronously, so it only has to wait for the one in flight.
func (d *Document) WaitSettled(ctx context.Context) error {
	d.mu.Lock()
	d.mu.Unlock()
	return ctx.Err()
}

// stamp is the date recorded on new revisions. The SDK reports revision
// dates to the second.
func (d *Document) stamp() time.Time {
	return d.now().Truncate(time.Second)
}

// apply rebases op from version onto the current text, applies it and
// moves fonts, bookmarks and the active range along.
func (d *Document) apply(op ot.Operation, version int) error {
	applied, err := d.doc.ApplyAt(d.engine, op, version)
	if err != nil {
		return err
	}
	d.fonts = applyFonts(d.fonts, applied)
	for _, b := range d.bookmarks {
		b.start = ot.TransformIndex(b.start, applied, false)
		b.end = ot.TransformIndex(b.end, applied, true)
	}
	d.active = span{
		ot.TransformIndex(d.active.start, applied, false),
		ot.TransformIndex(d.active.end, applied, true),
	}
	d.view = span{
		ot.TransformIndex(d.view.start, applied, false),
		ot.TransformIndex(d.view.end, applied, true),
	}
	d.hits = nil
	return nil
}

// edit replaces count characters at pos with text, recording a delete and
// an insert revision when tracking. Both share one date.
func (d *Document) edit(pos, count int, text string) error {
	if d.readOnly {
		return ErrReadOnly
	}
	n := d.doc.Len()
	if pos < 0 || count < 0 || pos+count > n {
		return ErrBadRange
	}
	if count == 0 && text == "" {
		return nil
	}
	deleted := d.textOf(span{pos, pos + count})
	if err := d.apply(ot.NewReplace(pos, count, text, n), d.doc.Version); err != nil {
		return err
	}
	if !d.track {
		return nil
	}

	date := d.stamp()
	if count > 0 {
		d.revs = append(d.revs, &revision{
			kind: kindDelete, version: d.doc.Version, pos: pos, text: deleted, date: date, author: d.author,
		})
	}
	if text != "" {
		d.revs = append(d.revs, &revision{
			kind: kindInsert, version: d.doc.Version, pos: pos, length: ot.RuneLen(text), date: date, author: d.author,
		})
	}
	return nil
}

// applyFonts carries per-character fonts through op. Inserted characters
// take the font of the character before them.
func applyFonts(fonts []string, op ot.Operation) []string {
	out := make([]string, 0, op.TargetLen())
	pos := 0
	for _, c := range op.Ops {
		switch {
		case c.IsRetain():
			out = append(out, fonts[pos:pos+c.Retain]...)
			pos += c.Retain
		case c.IsDelete():
			pos += c.Delete
		case c.IsInsert():
			var font string
			if len(out) > 0 {
				font = out[len(out)-1]
			} else if pos < len(fonts) {
				font = fonts[pos]
			}
			for range ot.RuneLen(c.Insert) {
				out = append(out, font)
			}
		}
	}
	return out
}

type selection struct {
	d *Document
}

// InsertAfter inserts text at the end of the active range, which then
// grows to cover it.
func (s selection) InsertAfter(_ context.Context, text string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.edit(s.d.active.end, 0, text)
}
