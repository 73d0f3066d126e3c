package memdoc

import (
	"context"
	"fmt"

	"github.com/alimasry/go-office-kit/ot"
	"github.com/alimasry/go-office-kit/sdk"
)

type bookmarkSet struct {
	d *Document
}

func (b bookmarkSet) Add(_ context.Context, bm sdk.Bookmark) error {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if bm.Name == "" {
		return fmt.Errorf("memdoc: bookmark needs a name")
	}
	if bm.Start < 0 || bm.End < bm.Start || bm.End > b.d.doc.Len() {
		return fmt.Errorf("%w: bookmark %s at %d-%d", ErrBadRange, bm.Name, bm.Start, bm.End)
	}
	b.d.bookmarks[bm.Name] = &span{bm.Start, bm.End}
	return nil
}

func (b bookmarkSet) Exists(_ context.Context, name string) (bool, error) {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	_, ok := b.d.bookmarks[name]
	return ok, nil
}

// ReplaceBookmark replaces each bookmark's text with its value, as a
// tracked change when tracking is on. Unknown bookmarks and value types
// other than "text" are skipped and make the result false; edit failures
// stop the batch.
func (b bookmarkSet) ReplaceBookmark(_ context.Context, values []sdk.BookmarkValue) (bool, error) {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()

	all := true
	for _, v := range values {
		bm, ok := b.d.bookmarks[v.Name]
		if !ok {
			log.Warningf("replace bookmark %s: %v", v.Name, ErrNoBookmark)
			all = false
			continue
		}
		if v.Type != "text" {
			log.Warningf("replace bookmark %s: unsupported value type %q", v.Name, v.Type)
			all = false
			continue
		}
		start := bm.start
		if err := b.d.edit(start, bm.end-start, v.Value); err != nil {
			return false, fmt.Errorf("replace bookmark %s: %w", v.Name, err)
		}
		bm.start, bm.end = start, start+ot.RuneLen(v.Value)
	}
	return all, nil
}
