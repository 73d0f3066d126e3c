package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/alimasry/go-office-kit/ot"
)

var log = commonlog.GetLogger("officekit.store")

// dirtyState tracks what a document still owes the backing store.
type dirtyState struct {
	created        bool // exists in cache only
	contentDirty   bool
	revisionsDirty bool
	flushedOps     int // history entries already in the backing store
	gen            int // bumped on every write
}

func (ds *dirtyState) clean() bool {
	return !ds.created && !ds.contentDirty && !ds.revisionsDirty
}

// CachedStore serves reads and writes from memory and writes dirty
// documents back to a slower store on a timer. Saving a document from the
// editor is then one memory write however many revisions it carries.
type CachedStore struct {
	cache         *MemoryStore
	backing       DocumentStore
	mu            sync.Mutex
	dirty         map[string]*dirtyState
	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
}

// NewCachedStore creates a CachedStore that flushes to backing every
// flushInterval and once more on Close.
func NewCachedStore(backing DocumentStore, flushInterval time.Duration) *CachedStore {
	cs := &CachedStore{
		cache:         NewMemoryStore(),
		backing:       backing,
		dirty:         make(map[string]*dirtyState),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cs.flushLoop()
	return cs
}

func (cs *CachedStore) Create(ctx context.Context, id, content string) error {
	if _, err := cs.backing.Get(ctx, id); err == nil {
		return fmt.Errorf("document %q: %w", id, ErrExists)
	}
	if err := cs.cache.Create(ctx, id, content); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.dirty[id] = &dirtyState{created: true, contentDirty: true}
	cs.mu.Unlock()
	return nil
}

func (cs *CachedStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	info, err := cs.cache.Get(ctx, id)
	if err == nil {
		return info, nil
	}
	if err := cs.loadFromBacking(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.Get(ctx, id)
}

// List reports the backing store's view; documents not yet flushed are
// added from the cache.
func (cs *CachedStore) List(ctx context.Context) ([]DocumentInfo, error) {
	docs, err := cs.backing.List(ctx)
	if err != nil {
		return nil, err
	}
	cs.mu.Lock()
	var pending []string
	for id, ds := range cs.dirty {
		if ds.created {
			pending = append(pending, id)
		}
	}
	cs.mu.Unlock()
	for _, id := range pending {
		if info, err := cs.cache.Get(ctx, id); err == nil {
			docs = append(docs, *info)
		}
	}
	return docs, nil
}

// markDirty records a write to id, creating its dirty state from the
// current cache history length when the document was clean.
func (cs *CachedStore) markDirty(id string, historyLen int, mark func(*dirtyState)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	ds := cs.dirty[id]
	if ds == nil {
		ds = &dirtyState{flushedOps: historyLen}
		cs.dirty[id] = ds
	}
	ds.gen++
	mark(ds)
}

func (cs *CachedStore) historyLen(id string) int {
	cs.cache.mu.RLock()
	defer cs.cache.mu.RUnlock()
	if rec, ok := cs.cache.docs[id]; ok {
		return len(rec.history)
	}
	return 0
}

func (cs *CachedStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	if err := cs.cache.UpdateContent(ctx, id, content, version); err != nil {
		return err
	}
	cs.markDirty(id, cs.historyLen(id), func(ds *dirtyState) { ds.contentDirty = true })
	return nil
}

func (cs *CachedStore) AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	// A clean document has flushed everything up to the current length.
	prevLen := cs.historyLen(id)
	if err := cs.cache.AppendOperation(ctx, id, op, version); err != nil {
		return err
	}
	cs.markDirty(id, prevLen, func(*dirtyState) {})
	return nil
}

func (cs *CachedStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]ot.Operation, error) {
	if _, err := cs.Get(ctx, id); err != nil {
		return nil, err
	}
	return cs.cache.GetOperations(ctx, id, fromVersion)
}

func (cs *CachedStore) PutRevisions(ctx context.Context, id string, revs []Revision) error {
	if _, err := cs.Get(ctx, id); err != nil {
		return err
	}
	if err := cs.cache.PutRevisions(ctx, id, revs); err != nil {
		return err
	}
	cs.markDirty(id, cs.historyLen(id), func(ds *dirtyState) { ds.revisionsDirty = true })
	return nil
}

// loadFromBacking copies a document and its operations into the cache.
func (cs *CachedStore) loadFromBacking(ctx context.Context, id string) error {
	info, err := cs.backing.Get(ctx, id)
	if err != nil {
		return err
	}
	ops, err := cs.backing.GetOperations(ctx, id, 0)
	if err != nil {
		return err
	}

	cs.cache.mu.Lock()
	if _, exists := cs.cache.docs[id]; !exists {
		cs.cache.docs[id] = &docRecord{info: *info, history: ops}
	}
	cs.cache.mu.Unlock()
	return nil
}

func (cs *CachedStore) flushLoop() {
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	defer close(cs.done)

	for {
		select {
		case <-ticker.C:
			cs.flush()
		case <-cs.stop:
			cs.flush()
			return
		}
	}
}

// flush writes every dirty document to the backing store. Operations go
// first so a crash between steps leaves a replayable journal.
func (cs *CachedStore) flush() {
	cs.mu.Lock()
	snapshot := make(map[string]dirtyState, len(cs.dirty))
	for id, ds := range cs.dirty {
		snapshot[id] = *ds
	}
	cs.mu.Unlock()

	ctx := context.Background()
	for id, ds := range snapshot {
		cs.cache.mu.RLock()
		rec, ok := cs.cache.docs[id]
		if !ok {
			cs.cache.mu.RUnlock()
			continue
		}
		info := rec.info
		info.Revisions = slices.Clone(rec.info.Revisions)
		newOps := slices.Clone(rec.history[min(ds.flushedOps, len(rec.history)):])
		cs.cache.mu.RUnlock()

		if ds.created {
			if err := cs.backing.Create(ctx, id, info.Content); err != nil && !errors.Is(err, ErrExists) {
				log.Errorf("flush %q: create: %v", id, err)
				continue
			}
			ds.created = false
		}

		for _, op := range newOps {
			version := ds.flushedOps + 1
			if err := cs.backing.AppendOperation(ctx, id, op, version); err != nil {
				log.Errorf("flush %q: operation %d: %v", id, version, err)
				break
			}
			ds.flushedOps++
		}

		if ds.contentDirty {
			if err := cs.backing.UpdateContent(ctx, id, info.Content, info.Version); err != nil {
				log.Errorf("flush %q: content: %v", id, err)
			} else {
				ds.contentDirty = false
			}
		}
		if ds.revisionsDirty {
			if err := cs.backing.PutRevisions(ctx, id, info.Revisions); err != nil {
				log.Errorf("flush %q: revisions: %v", id, err)
			} else {
				ds.revisionsDirty = false
			}
		}

		cs.settle(id, snapshot[id], ds)
	}
}

// settle folds the result of flushing id back into the live dirty state.
// Flags are only cleared when nothing was written to id during the flush.
func (cs *CachedStore) settle(id string, before, after dirtyState) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cur := cs.dirty[id]
	if cur == nil {
		return
	}
	cur.flushedOps = after.flushedOps
	if !after.created {
		cur.created = false
	}
	if cur.gen == before.gen {
		cur.contentDirty = after.contentDirty
		cur.revisionsDirty = after.revisionsDirty
	}
	if cur.clean() && cur.flushedOps >= cs.historyLen(id) {
		delete(cs.dirty, id)
	}
}

// Close stops the flush loop after a final flush.
func (cs *CachedStore) Close() {
	close(cs.stop)
	<-cs.done
}
