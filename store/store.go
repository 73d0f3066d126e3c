package store

import (
	"context"
	"errors"
	"time"

	"github.com/alimasry/go-office-kit/ot"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrExists   = errors.New("document already exists")
)

// Revision is a persisted tracked change. Pos and Length are offsets in
// the document as it stood at Version, the number of operations applied
// when the change was made.
type Revision struct {
	Kind      string    `json:"kind"`
	Version   int       `json:"version"`
	Pos       int       `json:"pos"`
	Length    int       `json:"length,omitempty"`
	Text      string    `json:"text,omitempty"`
	Font      string    `json:"font,omitempty"`
	PrevFonts []string  `json:"prevFonts,omitempty"`
	Date      time.Time `json:"date"`
	Author    string    `json:"author,omitempty"`
}

// DocumentInfo holds document metadata, content and pending revisions.
type DocumentInfo struct {
	ID        string
	Content   string
	Version   int
	Revisions []Revision
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentStore abstracts document persistence.
// Implementations: MemoryStore, FirestoreStore, SQLiteStore, and
// CachedStore in front of any of them.
type DocumentStore interface {
	Create(ctx context.Context, id, content string) error
	Get(ctx context.Context, id string) (*DocumentInfo, error)
	List(ctx context.Context) ([]DocumentInfo, error)
	UpdateContent(ctx context.Context, id, content string, version int) error
	AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error
	GetOperations(ctx context.Context, id string, fromVersion int) ([]ot.Operation, error)
	// PutRevisions replaces the document's pending revisions.
	PutRevisions(ctx context.Context, id string, revs []Revision) error
}
