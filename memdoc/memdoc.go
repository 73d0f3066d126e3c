// Package memdoc is an in-process implementation of the document SDK. A
// document lives in memory as text plus its operation history, tracked
// revisions, bookmarks and per-character fonts; sessions load it from a
// store.DocumentStore and write it back on Save.
package memdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tliron/commonlog"

	"github.com/alimasry/go-office-kit/sdk"
	"github.com/alimasry/go-office-kit/store"
)

var log = commonlog.GetLogger("officekit.memdoc")

var (
	ErrReadOnly       = errors.New("memdoc: document is read-only")
	ErrNoBookmark     = errors.New("memdoc: no such bookmark")
	ErrRevisionGone   = errors.New("memdoc: revision no longer exists")
	ErrBadRange       = errors.New("memdoc: range out of bounds")
	ErrNoMount        = errors.New("memdoc: no mount point")
	ErrNoFile         = errors.New("memdoc: no file id")
	ErrUnknownCommand = errors.New("memdoc: unknown command")
	ErrDestroyed      = errors.New("memdoc: session destroyed")
)

// DefaultTokenTTL is how long a session token is assumed valid before
// Options.RefreshToken is first called.
const DefaultTokenTTL = 30 * time.Minute

// SDK opens documents from Store. It implements sdk.Initializer.
type SDK struct {
	Store store.DocumentStore
	// Author is recorded on revisions unless the session names its own.
	Author string
	// TokenTTL overrides DefaultTokenTTL.
	TokenTTL time.Duration
	// Now overrides the clock used to date revisions.
	Now func() time.Time
}

// New returns an SDK backed by st.
func New(st store.DocumentStore) *SDK {
	return &SDK{Store: st, Author: "demo"}
}

func (s *SDK) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// params are the custom options memdoc understands.
type params struct {
	content     string // initial content of a new document
	author      string
	track       bool
	defaultFont string
}

func parseParams(raw json.RawMessage) (params, error) {
	var p params
	if len(raw) == 0 {
		return p, nil
	}
	if !gjson.ValidBytes(raw) {
		return p, fmt.Errorf("memdoc: custom options are not valid JSON")
	}
	p.content = gjson.GetBytes(raw, "content").String()
	p.author = gjson.GetBytes(raw, "author").String()
	p.track = gjson.GetBytes(raw, "trackRevisions").Bool()
	p.defaultFont = gjson.GetBytes(raw, "defaultFont").String()
	return p, nil
}

// Init validates opts and starts loading the document in the background.
// The returned session is usable once Ready returns.
func (s *SDK) Init(ctx context.Context, opts sdk.Options) (sdk.Session, error) {
	if opts.Mount == "" {
		return nil, ErrNoMount
	}
	if opts.FileID == "" {
		return nil, ErrNoFile
	}
	if opts.OfficeType != "" && opts.OfficeType != sdk.Writer {
		return nil, fmt.Errorf("memdoc: unsupported office type %q", opts.OfficeType)
	}
	p, err := parseParams(opts.Custom)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		sdk:    s,
		opts:   opts,
		params: p,
		token:  opts.Token,
		ready:  make(chan struct{}),
		stop:   make(chan struct{}),
	}
	// Loading outlives the Init call, as the editor does in a page.
	go sess.load(context.WithoutCancel(ctx))
	return sess, nil
}

// open loads id from the store, creating it with p.content when missing.
func (s *SDK) open(ctx context.Context, id string, p params) (*Document, error) {
	info, err := s.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		if err := s.Store.Create(ctx, id, p.content); err != nil && !errors.Is(err, store.ErrExists) {
			return nil, fmt.Errorf("create %q: %w", id, err)
		}
		log.Infof("created document %q", id)
		info, err = s.Store.Get(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", id, err)
	}
	ops, err := s.Store.GetOperations(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("load %q operations: %w", id, err)
	}

	author := p.author
	if author == "" {
		author = s.Author
	}
	return newDocument(info, ops, docConfig{
		author:      author,
		track:       p.track,
		defaultFont: p.defaultFont,
		now:         s.now,
	}), nil
}

// Session is one opened document.
type Session struct {
	sdk    *SDK
	opts   sdk.Options
	params params

	ready   chan struct{}
	loadErr error
	doc     *Document

	mu        sync.Mutex
	token     string
	destroyed bool
	stop      chan struct{}
	stopOnce  sync.Once
}

func (s *Session) load(ctx context.Context) {
	defer close(s.ready)
	doc, err := s.sdk.open(ctx, s.opts.FileID, s.params)
	if err != nil {
		log.Errorf("open %q: %v", s.opts.FileID, err)
		s.loadErr = err
		return
	}
	s.doc = doc
	if s.opts.RefreshToken != nil {
		go s.refreshLoop(ctx)
	}
}

// refreshLoop renews the session token until the session is destroyed or
// the callback stops asking to be called again.
func (s *Session) refreshLoop(ctx context.Context) {
	wait := s.sdk.TokenTTL
	if wait <= 0 {
		wait = DefaultTokenTTL
	}
	for {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-s.stop:
			t.Stop()
			return
		}
		token, timeout, err := s.opts.RefreshToken(ctx)
		if err != nil {
			log.Errorf("refresh token for %q: %v", s.opts.FileID, err)
			return
		}
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
		if timeout <= 0 {
			return
		}
		wait = timeout
	}
}

// Token returns the current session token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// document returns the loaded document once the session is ready.
func (s *Session) document(ctx context.Context) (*Document, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, ErrDestroyed
	}
	return s.doc, nil
}

func (s *Session) Application(ctx context.Context) (sdk.Application, error) {
	doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}
	return application{doc: doc}, nil
}

// Save writes operations recorded since the last save, the content and
// the pending revisions back to the store.
func (s *Session) Save(ctx context.Context) error {
	doc, err := s.document(ctx)
	if err != nil {
		return err
	}

	doc.mu.Lock()
	base := doc.saved
	ops := slices.Clone(doc.doc.History[base:])
	content, version := doc.doc.Content, doc.doc.Version
	revs := doc.storeRevisions()
	doc.mu.Unlock()

	for i, op := range ops {
		if err := s.sdk.Store.AppendOperation(ctx, doc.id, op, base+i+1); err != nil {
			return fmt.Errorf("save %q operation %d: %w", doc.id, base+i+1, err)
		}
	}
	if err := s.sdk.Store.UpdateContent(ctx, doc.id, content, version); err != nil {
		return fmt.Errorf("save %q content: %w", doc.id, err)
	}
	if err := s.sdk.Store.PutRevisions(ctx, doc.id, revs); err != nil {
		return fmt.Errorf("save %q revisions: %w", doc.id, err)
	}

	doc.mu.Lock()
	doc.saved = max(doc.saved, base+len(ops))
	doc.mu.Unlock()
	log.Debugf("saved %q at v%d with %d revisions", doc.id, version, len(revs))
	return nil
}

func (s *Session) ExecuteCommandBar(ctx context.Context, command string) error {
	doc, err := s.document(ctx)
	if err != nil {
		return err
	}
	switch command {
	case sdk.CommandTrackChanges:
		doc.mu.Lock()
		doc.track = !doc.track
		doc.mu.Unlock()
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
}

// Destroy detaches the session. The document is not saved.
func (s *Session) Destroy(context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
	return nil
}

type application struct {
	doc *Document
}

func (a application) ActiveDocument(context.Context) (sdk.Document, error) {
	return a.doc, nil
}

var (
	_ sdk.Initializer = (*SDK)(nil)
	_ sdk.Session     = (*Session)(nil)
	_ sdk.Document    = (*Document)(nil)
	_ sdk.Settler     = (*Document)(nil)
)
