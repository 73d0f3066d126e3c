// Package sdk declares the slice of the embedded office-document SDK that
// the helper layer calls. The real SDK exposes a deep object graph
// (Application, ActiveDocument, Find, Range, Revisions, Bookmarks,
// ActiveWindow, Selection); here it is flattened into a few small
// interfaces so a test double or an in-process document can stand in.
package sdk

import (
	"context"
	"encoding/json"
	"time"
)

// OfficeType selects the editor component the SDK mounts.
type OfficeType string

const (
	Writer       OfficeType = "writer"
	Spreadsheet  OfficeType = "spreadsheet"
	Presentation OfficeType = "presentation"
)

// Mode selects the editor chrome.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeSimple Mode = "simple"
)

// CommandTrackChanges toggles track-changes mode when executed on a Session.
const CommandTrackChanges = "ReviewTrackChanges"

// RefreshTokenFunc is called by the SDK when its token is about to expire.
type RefreshTokenFunc func(ctx context.Context) (token string, timeout time.Duration, err error)

// Options configure a new editor session.
type Options struct {
	Mode         Mode
	Mount        string // container the editor is mounted into
	OfficeType   OfficeType
	AppID        string
	FileID       string
	Token        string
	RefreshToken RefreshTokenFunc
	// Custom carries caller options the SDK understands but this layer does not.
	Custom json.RawMessage
}

// Initializer is the SDK entry point.
type Initializer interface {
	Init(ctx context.Context, opts Options) (Session, error)
}

// Session is one mounted editor.
type Session interface {
	// Ready blocks until the editor has loaded the document.
	Ready(ctx context.Context) error
	Application(ctx context.Context) (Application, error)
	Save(ctx context.Context) error
	ExecuteCommandBar(ctx context.Context, command string) error
	Destroy(ctx context.Context) error
}

// Application is the root of the live object graph.
type Application interface {
	ActiveDocument(ctx context.Context) (Document, error)
}

// Match is one find hit, in character offsets.
type Match struct {
	Pos int `json:"pos"`
	Len int `json:"len"`
}

// Range is a span of the document, End exclusive.
type Range struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Document is the active document.
type Document interface {
	SetReadOnly(ctx context.Context, readOnly bool) error
	TrackRevisions(ctx context.Context) (bool, error)

	Find(ctx context.Context, text string, caseSensitive bool) ([]Match, error)
	ClearHitHighlight(ctx context.Context) error

	// SetRange makes [start, end) the active range.
	SetRange(ctx context.Context, start, end int) (Range, error)
	ScrollIntoView(ctx context.Context, r Range) error
	// Selection returns nil when the window has no cursor.
	Selection(ctx context.Context) (Selection, error)
	// DocumentRange spans the whole document including the trailing
	// paragraph mark.
	DocumentRange(ctx context.Context) (Range, error)
	SetFontName(ctx context.Context, start, end int, font string) error

	Revisions(ctx context.Context) (Revisions, error)
	Bookmarks(ctx context.Context) (Bookmarks, error)
}

// Selection is the window cursor.
type Selection interface {
	InsertAfter(ctx context.Context, text string) error
}

// Revisions is the live list of tracked changes. Items are addressed by
// 1-based index, so accepting or rejecting one shifts the index of every
// later item.
type Revisions interface {
	Count(ctx context.Context) (int, error)
	Item(ctx context.Context, index int) (Revision, error)
}

// Revision is a handle to one tracked change.
type Revision interface {
	Date(ctx context.Context) (time.Time, error)
	Range(ctx context.Context) (Range, error)
	Accept(ctx context.Context) error
	Reject(ctx context.Context) error
}

// Bookmark is a named span, End exclusive.
type Bookmark struct {
	Name  string
	Start int
	End   int
}

// BookmarkValue replaces the content of the named bookmark.
type BookmarkValue struct {
	Name  string `json:"name"`
	Type  string `json:"type"` // "text"
	Value string `json:"value"`
}

// Bookmarks is the document bookmark collection.
type Bookmarks interface {
	Add(ctx context.Context, b Bookmark) error
	Exists(ctx context.Context, name string) (bool, error)
	// ReplaceBookmark replaces each bookmark's span with its value and
	// reports whether all replacements were made.
	ReplaceBookmark(ctx context.Context, values []BookmarkValue) (bool, error)
}

// Settler is implemented by documents that can report when the effects of
// earlier calls are visible. Callers that would otherwise sleep between
// dependent calls wait on it instead.
type Settler interface {
	WaitSettled(ctx context.Context) error
}
