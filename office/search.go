package office

import (
	"context"
	"fmt"
	"strings"

	"github.com/alimasry/go-office-kit/ot"
	"github.com/alimasry/go-office-kit/sdk"
)

// Location is a highlighted span of the document.
type Location struct {
	Pos     int         `json:"pos"`
	Len     int         `json:"len"`
	Matches []sdk.Match `json:"matches,omitempty"`
}

// firstLine returns s up to its first line break.
func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSuffix(line, "\r")
}

// ClearHighlight removes find hit highlighting.
func ClearHighlight(ctx context.Context, app sdk.Application) error {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		return err
	}
	return doc.ClearHitHighlight(ctx)
}

// HighlightText clears earlier hits and makes [pos, pos+length) the active
// range. It reports whether the range was set.
func HighlightText(ctx context.Context, app sdk.Application, pos, length int) bool {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		log.Errorf("highlight text: %v", err)
		return false
	}
	if err := doc.ClearHitHighlight(ctx); err != nil {
		log.Errorf("highlight text: clear: %v", err)
		return false
	}
	if _, err := doc.SetRange(ctx, pos, pos+length); err != nil {
		log.Errorf("highlight text: set range %d+%d: %v", pos, length, err)
		return false
	}
	return true
}

// HighlightByRange selects [pos, pos+length) and scrolls it into view.
func HighlightByRange(ctx context.Context, app sdk.Application, pos, length int) (*Location, error) {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		return nil, err
	}
	return highlight(ctx, doc, pos, length)
}

func highlight(ctx context.Context, doc sdk.Document, pos, length int) (*Location, error) {
	r, err := doc.SetRange(ctx, pos, pos+length)
	if err != nil {
		return nil, fmt.Errorf("set range %d+%d: %w", pos, length, err)
	}
	if err := doc.ScrollIntoView(ctx, r); err != nil {
		return nil, fmt.Errorf("scroll into view: %w", err)
	}
	// Scrolling can move the selection; put it back.
	if _, err := doc.SetRange(ctx, pos, pos+length); err != nil {
		return nil, fmt.Errorf("reset range %d+%d: %w", pos, length, err)
	}
	return &Location{Pos: pos, Len: length}, nil
}

// SearchAndLocate finds the first line of query and highlights the first
// hit. The highlight covers the longer of query and the hit, so stored
// text that differs from the live text in formatting is still covered.
// Misses are logged and, when notify is set, reported through Notify.
// SDK failures are logged; both return nil.
func (h *Helper) SearchAndLocate(ctx context.Context, app sdk.Application, query string, notify bool) *Location {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		log.Errorf("search: %v", err)
		return nil
	}
	term := strings.TrimSpace(firstLine(query))

	if err := doc.ClearHitHighlight(ctx); err != nil {
		log.Errorf("search: clear highlight: %v", err)
		return nil
	}
	matches, err := doc.Find(ctx, term, false)
	if err != nil {
		log.Errorf("search %q: %v", term, err)
		return nil
	}
	if len(matches) == 0 {
		h.warn(fmt.Sprintf("no match for %q, locate the revision manually", term), notify)
		return nil
	}

	hit := matches[0]
	length := max(ot.RuneLen(query), hit.Len)
	loc, err := highlight(ctx, doc, hit.Pos, length)
	if err != nil {
		log.Errorf("search %q: %v", term, err)
		return nil
	}
	loc.Matches = matches
	return loc
}

// InsertAtCursor inserts text right after the current selection. It
// reports false when there is no selection or the SDK call fails.
func InsertAtCursor(ctx context.Context, app sdk.Application, text string) bool {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		log.Errorf("insert at cursor: %v", err)
		return false
	}
	sel, err := doc.Selection(ctx)
	if err != nil {
		log.Errorf("insert at cursor: selection: %v", err)
		return false
	}
	if sel == nil {
		return false
	}
	if err := sel.InsertAfter(ctx, text); err != nil {
		log.Errorf("insert at cursor: %v", err)
		return false
	}
	return true
}
