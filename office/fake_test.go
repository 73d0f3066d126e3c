package office

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alimasry/go-office-kit/sdk"
)

// fakeDoc implements sdk.Document and records every call in order.
type fakeDoc struct {
	calls []string

	matches   []sdk.Match
	findTerms []string
	findErr   error
	ranges    []sdk.Range
	scrolled  []sdk.Range
	selection sdk.Selection
	docEnd    int
	fonts     []string
	readOnly  bool
	tracking  bool
	revs      *fakeRevisions
	bookmarks *fakeBookmarks
}

func newFakeDoc() *fakeDoc {
	d := &fakeDoc{}
	d.revs = &fakeRevisions{doc: d}
	d.bookmarks = &fakeBookmarks{doc: d, replaceOK: true, live: map[string]sdk.Bookmark{}}
	return d
}

func (d *fakeDoc) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDoc) SetReadOnly(_ context.Context, readOnly bool) error {
	d.record("readonly %v", readOnly)
	d.readOnly = readOnly
	return nil
}

func (d *fakeDoc) TrackRevisions(context.Context) (bool, error) { return d.tracking, nil }

func (d *fakeDoc) Find(_ context.Context, text string, _ bool) ([]sdk.Match, error) {
	d.record("find %s", text)
	d.findTerms = append(d.findTerms, text)
	return d.matches, d.findErr
}

func (d *fakeDoc) ClearHitHighlight(context.Context) error {
	d.record("clear")
	return nil
}

func (d *fakeDoc) SetRange(_ context.Context, start, end int) (sdk.Range, error) {
	d.record("range %d-%d", start, end)
	r := sdk.Range{Start: start, End: end}
	d.ranges = append(d.ranges, r)
	return r, nil
}

func (d *fakeDoc) ScrollIntoView(_ context.Context, r sdk.Range) error {
	d.record("scroll %d-%d", r.Start, r.End)
	d.scrolled = append(d.scrolled, r)
	return nil
}

func (d *fakeDoc) Selection(context.Context) (sdk.Selection, error) { return d.selection, nil }

func (d *fakeDoc) DocumentRange(context.Context) (sdk.Range, error) {
	return sdk.Range{End: d.docEnd}, nil
}

func (d *fakeDoc) SetFontName(_ context.Context, start, end int, font string) error {
	d.record("font %d-%d %s", start, end, font)
	d.fonts = append(d.fonts, font)
	return nil
}

func (d *fakeDoc) Revisions(context.Context) (sdk.Revisions, error) { return d.revs, nil }
func (d *fakeDoc) Bookmarks(context.Context) (sdk.Bookmarks, error) { return d.bookmarks, nil }

// settlingDoc adds sdk.Settler to fakeDoc.
type settlingDoc struct {
	*fakeDoc
	settled int
}

func (d *settlingDoc) WaitSettled(context.Context) error {
	d.settled++
	return nil
}

type fakeApp struct{ doc sdk.Document }

func (a *fakeApp) ActiveDocument(context.Context) (sdk.Document, error) { return a.doc, nil }

type fakeRevision struct {
	doc       *fakeDoc
	name      string
	date      time.Time
	start     int
	text      string
	acceptErr error
	rejectErr error

	// delay makes Accept slow; acceptedAt records when each call returned.
	delay      time.Duration
	acceptedAt []time.Time
}

func (r *fakeRevision) Date(context.Context) (time.Time, error) { return r.date, nil }

func (r *fakeRevision) Range(context.Context) (sdk.Range, error) {
	return sdk.Range{Start: r.start, End: r.start + len(r.text), Text: r.text}, nil
}

func (r *fakeRevision) Accept(context.Context) error {
	r.doc.record("accept %s", r.name)
	time.Sleep(r.delay)
	r.acceptedAt = append(r.acceptedAt, time.Now())
	return r.acceptErr
}

func (r *fakeRevision) Reject(context.Context) error {
	r.doc.record("reject %s", r.name)
	return r.rejectErr
}

type fakeRevisions struct {
	doc   *fakeDoc
	items []*fakeRevision
}

func (r *fakeRevisions) add(name string, date time.Time, start int, text string) *fakeRevision {
	rev := &fakeRevision{doc: r.doc, name: name, date: date, start: start, text: text}
	r.items = append(r.items, rev)
	return rev
}

func (r *fakeRevisions) Count(context.Context) (int, error) { return len(r.items), nil }

func (r *fakeRevisions) Item(_ context.Context, index int) (sdk.Revision, error) {
	if index < 1 || index > len(r.items) {
		return nil, errors.New("index out of range")
	}
	return r.items[index-1], nil
}

type fakeBookmarks struct {
	doc       *fakeDoc
	live      map[string]sdk.Bookmark
	added     []sdk.Bookmark
	replaced  []sdk.BookmarkValue
	replaceOK bool
	addErr    error
}

func (b *fakeBookmarks) Add(_ context.Context, bm sdk.Bookmark) error {
	b.doc.record("bookmark %d-%d", bm.Start, bm.End)
	if b.addErr != nil {
		return b.addErr
	}
	b.added = append(b.added, bm)
	b.live[bm.Name] = bm
	return nil
}

func (b *fakeBookmarks) Exists(_ context.Context, name string) (bool, error) {
	_, ok := b.live[name]
	return ok, nil
}

func (b *fakeBookmarks) ReplaceBookmark(_ context.Context, values []sdk.BookmarkValue) (bool, error) {
	for _, v := range values {
		b.doc.record("replace %s", v.Value)
	}
	b.replaced = append(b.replaced, values...)
	return b.replaceOK, nil
}

type fakeSelection struct {
	inserted []string
	err      error
}

func (s *fakeSelection) InsertAfter(_ context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, text)
	return nil
}

type fakeSession struct {
	app      *fakeApp
	commands []string
	saved    int
	readyErr error
}

func (s *fakeSession) Ready(context.Context) error { return s.readyErr }
func (s *fakeSession) Application(context.Context) (sdk.Application, error) {
	return s.app, nil
}
func (s *fakeSession) Save(context.Context) error {
	s.saved++
	return nil
}
func (s *fakeSession) ExecuteCommandBar(_ context.Context, command string) error {
	s.commands = append(s.commands, command)
	return nil
}
func (s *fakeSession) Destroy(context.Context) error { return nil }

type fakeInitializer struct {
	session *fakeSession
	calls   []sdk.Options
	err     error
}

func (f *fakeInitializer) Init(_ context.Context, opts sdk.Options) (sdk.Session, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}
