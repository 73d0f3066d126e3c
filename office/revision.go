package office

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alimasry/go-office-kit/ot"
	"github.com/alimasry/go-office-kit/sdk"
)

// Action is what HandleMatchingRevisions does to each revision.
type Action string

const (
	Accept Action = "accept"
	Reject Action = "reject"
)

// bookmarkNameLen is the length of generated bookmark names.
const bookmarkNameLen = 8

// maxNameAttempts bounds regeneration when a bookmark name is taken.
const maxNameAttempts = 16

// RevisionInfo is a snapshot of one live revision.
type RevisionInfo struct {
	Index    int          `json:"index"` // 1-based position in the live list
	Text     string       `json:"text"`
	Date     time.Time    `json:"date"`
	Start    int          `json:"start"`
	Revision sdk.Revision `json:"-"`
}

// ReplaceResult reports a ReplaceWithRevision call.
type ReplaceResult struct {
	Success    bool
	ModifyDate time.Time
	Bookmark   string
}

// CollectRevisions snapshots revisions 1..count.
func CollectRevisions(ctx context.Context, revs sdk.Revisions, count int) ([]RevisionInfo, error) {
	infos := make([]RevisionInfo, 0, count)
	for i := 1; i <= count; i++ {
		rev, err := revs.Item(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("revision %d: %w", i, err)
		}
		r, err := rev.Range(ctx)
		if err != nil {
			return nil, fmt.Errorf("revision %d range: %w", i, err)
		}
		date, err := rev.Date(ctx)
		if err != nil {
			return nil, fmt.Errorf("revision %d date: %w", i, err)
		}
		infos = append(infos, RevisionInfo{
			Index:    i,
			Text:     firstLine(r.Text),
			Date:     date,
			Start:    r.Start,
			Revision: rev,
		})
	}
	return infos, nil
}

// MatchByDate returns the revisions dated exactly date, highest index
// first so that acting on one leaves the indexes of the rest intact.
func MatchByDate(infos []RevisionInfo, date time.Time) []RevisionInfo {
	var matched []RevisionInfo
	for _, info := range infos {
		if info.Date.Equal(date) {
			matched = append(matched, info)
		}
	}
	slices.SortFunc(matched, func(a, b RevisionInfo) int { return b.Index - a.Index })
	return matched
}

// LatestRevisionDate returns the newest revision date, or the zero time
// when there are none or the SDK fails.
func LatestRevisionDate(ctx context.Context, app sdk.Application) time.Time {
	latest, err := latestRevisionDate(ctx, app)
	if err != nil {
		log.Errorf("latest revision date: %v", err)
		return time.Time{}
	}
	return latest
}

func latestRevisionDate(ctx context.Context, app sdk.Application) (time.Time, error) {
	revs, count, err := revisionList(ctx, app)
	if err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for i := 1; i <= count; i++ {
		rev, err := revs.Item(ctx, i)
		if err != nil {
			return time.Time{}, fmt.Errorf("revision %d: %w", i, err)
		}
		date, err := rev.Date(ctx)
		if err != nil {
			return time.Time{}, fmt.Errorf("revision %d date: %w", i, err)
		}
		if date.After(latest) {
			latest = date
		}
	}
	return latest, nil
}

// ListRevisions snapshots every live revision in list order.
func ListRevisions(ctx context.Context, app sdk.Application) ([]RevisionInfo, error) {
	revs, count, err := revisionList(ctx, app)
	if err != nil {
		return nil, err
	}
	return CollectRevisions(ctx, revs, count)
}

func revisionList(ctx context.Context, app sdk.Application) (sdk.Revisions, int, error) {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		return nil, 0, err
	}
	revs, err := doc.Revisions(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("revisions: %w", err)
	}
	count, err := revs.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("revision count: %w", err)
	}
	return revs, count, nil
}

// RevisionsByDate returns the live revisions dated exactly date, highest
// index first. A zero date yields nothing.
func RevisionsByDate(ctx context.Context, app sdk.Application, date time.Time) ([]RevisionInfo, error) {
	if date.IsZero() {
		log.Warning("no revision date given, nothing to match")
		return nil, nil
	}
	revs, count, err := revisionList(ctx, app)
	if err != nil {
		return nil, err
	}
	infos, err := CollectRevisions(ctx, revs, count)
	if err != nil {
		return nil, err
	}
	return MatchByDate(infos, date), nil
}

// pacer spaces revision mutations. Documents that can report when they
// have settled are waited on; others pause for a full pace after every
// mutation, however long the mutation itself took.
type pacer struct {
	settler sdk.Settler
	every   rate.Limit
}

func (h *Helper) newPacer(ctx context.Context, app sdk.Application) *pacer {
	if doc, err := activeDocument(ctx, app); err == nil {
		if s, ok := doc.(sdk.Settler); ok {
			return &pacer{settler: s}
		}
	}
	d := h.pace()
	if d < 0 {
		return &pacer{}
	}
	return &pacer{every: rate.Every(d)}
}

func (p *pacer) wait(ctx context.Context) error {
	switch {
	case p.settler != nil:
		return p.settler.WaitSettled(ctx)
	case p.every > 0:
		// The bucket starts drained at the end of the mutation, so the
		// next token is a full pace away.
		lim := rate.NewLimiter(p.every, 1)
		lim.Allow()
		return lim.Wait(ctx)
	}
	return ctx.Err()
}

// HandleMatchingRevisions accepts or rejects each revision in order,
// pacing between them. A failing revision is logged and skipped. It
// returns how many succeeded; the error is non-nil only when ctx ends
// the batch early.
func (h *Helper) HandleMatchingRevisions(ctx context.Context, app sdk.Application, infos []RevisionInfo, action Action) (int, error) {
	p := h.newPacer(ctx, app)
	done := 0
	for _, info := range infos {
		var err error
		if action == Reject {
			err = info.Revision.Reject(ctx)
		} else {
			err = info.Revision.Accept(ctx)
		}
		if err != nil {
			log.Errorf("%s revision %d: %v", action, info.Index, err)
		} else {
			done++
		}
		if err := p.wait(ctx); err != nil {
			return done, err
		}
	}
	return done, nil
}

// HandleRevisionContent rejects every revision dated date, or, when reject
// is false, highlights the first of them that has visible text.
func (h *Helper) HandleRevisionContent(ctx context.Context, app sdk.Application, date time.Time, reject bool) (*Location, error) {
	infos, err := RevisionsByDate(ctx, app, date)
	if err != nil {
		return nil, err
	}
	if reject {
		_, err := h.HandleMatchingRevisions(ctx, app, infos, Reject)
		return nil, err
	}
	for _, info := range infos {
		if strings.TrimSpace(info.Text) == "" {
			continue
		}
		return HighlightByRange(ctx, app, info.Start, ot.RuneLen(info.Text))
	}
	h.warn("no revision text to locate, locate the revision manually", true)
	return nil, nil
}

// ReplaceWithRevision replaces [pos, pos+length) with replace through a
// temporary bookmark, so that track-changes records it as revisions, and
// reports the newest revision date for later matching. origin is only
// logged. The bookmark is not removed if the replacement fails.
func (h *Helper) ReplaceWithRevision(ctx context.Context, app sdk.Application, origin, replace string, pos, length int) (ReplaceResult, error) {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		return ReplaceResult{}, err
	}
	bookmarks, err := doc.Bookmarks(ctx)
	if err != nil {
		return ReplaceResult{}, fmt.Errorf("bookmarks: %w", err)
	}
	name, err := uniqueBookmarkName(ctx, bookmarks)
	if err != nil {
		return ReplaceResult{}, err
	}

	log.Debugf("replace %q at %d+%d via bookmark %s", firstLine(origin), pos, length, name)
	if err := bookmarks.Add(ctx, sdk.Bookmark{Name: name, Start: pos, End: pos + length}); err != nil {
		return ReplaceResult{}, fmt.Errorf("add bookmark %s: %w", name, err)
	}
	ok, err := bookmarks.ReplaceBookmark(ctx, []sdk.BookmarkValue{{Name: name, Type: "text", Value: replace}})
	if err != nil {
		return ReplaceResult{}, fmt.Errorf("replace bookmark %s: %w", name, err)
	}

	return ReplaceResult{
		Success:    ok,
		ModifyDate: LatestRevisionDate(ctx, app),
		Bookmark:   name,
	}, nil
}

func uniqueBookmarkName(ctx context.Context, bookmarks sdk.Bookmarks) (string, error) {
	for range maxNameAttempts {
		name := RandomString(bookmarkNameLen, true, true)
		taken, err := bookmarks.Exists(ctx, name)
		if err != nil {
			return "", fmt.Errorf("check bookmark %s: %w", name, err)
		}
		if !taken {
			return name, nil
		}
	}
	return "", fmt.Errorf("no free bookmark name after %d attempts", maxNameAttempts)
}

// FormatDocumentFont sets font over the whole document. If that produced
// revisions, that is if the newest revision is within FreshWindow of now,
// every revision sharing its date is accepted so the reformat does not
// show up as a tracked change. It returns how many were accepted.
func (h *Helper) FormatDocumentFont(ctx context.Context, app sdk.Application, font string) (int, error) {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		return 0, err
	}
	length, err := DocLength(ctx, app)
	if err != nil {
		return 0, err
	}
	if err := doc.SetFontName(ctx, 0, length, font); err != nil {
		return 0, fmt.Errorf("set font %q: %w", font, err)
	}
	if err := h.newPacer(ctx, app).wait(ctx); err != nil {
		return 0, err
	}

	now := h.now()
	date := LatestRevisionDate(ctx, app)
	if date.IsZero() || now.Sub(date) > h.freshWindow() {
		return 0, nil
	}
	infos, err := RevisionsByDate(ctx, app, date)
	if err != nil {
		return 0, err
	}
	return h.HandleMatchingRevisions(ctx, app, infos, Accept)
}
