package office

import (
	"context"
	"errors"
	"testing"

	"github.com/alimasry/go-office-kit/sdk"
)

func TestSearchAndLocate_FirstLineOnly(t *testing.T) {
	doc := newFakeDoc()
	doc.matches = []sdk.Match{{Pos: 4, Len: 8}}
	h := &Helper{}

	loc := h.SearchAndLocate(context.Background(), &fakeApp{doc: doc}, "  line one \nline two", false)
	if loc == nil {
		t.Fatal("expected a location")
	}
	if len(doc.findTerms) != 1 || doc.findTerms[0] != "line one" {
		t.Errorf("find terms = %q, want [\"line one\"]", doc.findTerms)
	}
	if doc.calls[0] != "clear" {
		t.Errorf("first call = %q, want clear", doc.calls[0])
	}
}

func TestSearchAndLocate_HighlightLength(t *testing.T) {
	query := "abcdefghijklmnopqrst" // 20 chars
	tests := []struct {
		name       string
		matchedLen int
		want       int
	}{
		{"query longer than match", 12, 20},
		{"match longer than query", 30, 30},
		{"equal", 20, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newFakeDoc()
			doc.matches = []sdk.Match{{Pos: 100, Len: tt.matchedLen}, {Pos: 300, Len: 1}}
			h := &Helper{}

			loc := h.SearchAndLocate(context.Background(), &fakeApp{doc: doc}, query, true)
			if loc == nil {
				t.Fatal("expected a location")
			}
			if loc.Pos != 100 || loc.Len != tt.want {
				t.Errorf("location = %d+%d, want 100+%d", loc.Pos, loc.Len, tt.want)
			}
			if len(doc.scrolled) != 1 || doc.scrolled[0].End != 100+tt.want {
				t.Errorf("scrolled = %+v", doc.scrolled)
			}
			last := doc.ranges[len(doc.ranges)-1]
			if last.Start != 100 || last.End != 100+tt.want {
				t.Errorf("active range = %+v", last)
			}
		})
	}
}

func TestSearchAndLocate_MultibyteQueryLength(t *testing.T) {
	doc := newFakeDoc()
	doc.matches = []sdk.Match{{Pos: 0, Len: 2}}
	loc := (&Helper{}).SearchAndLocate(context.Background(), &fakeApp{doc: doc}, "模拟文档", false)
	if loc == nil || loc.Len != 4 {
		t.Fatalf("location = %+v, want length 4", loc)
	}
}

func TestSearchAndLocate_NoMatch(t *testing.T) {
	for _, notify := range []bool{true, false} {
		doc := newFakeDoc()
		var notes []string
		h := &Helper{Notify: func(m string) { notes = append(notes, m) }}

		if loc := h.SearchAndLocate(context.Background(), &fakeApp{doc: doc}, "missing", notify); loc != nil {
			t.Errorf("notify=%v: got %+v, want nil", notify, loc)
		}
		if notify && len(notes) != 1 {
			t.Errorf("notify=true: %d notes, want 1", len(notes))
		}
		if !notify && len(notes) != 0 {
			t.Errorf("notify=false: %d notes, want 0", len(notes))
		}
		if len(doc.scrolled) != 0 {
			t.Error("scrolled without a match")
		}
	}
}

func TestSearchAndLocate_ErrorBecomesNil(t *testing.T) {
	doc := newFakeDoc()
	doc.findErr = errors.New("iframe gone")
	if loc := (&Helper{}).SearchAndLocate(context.Background(), &fakeApp{doc: doc}, "x", true); loc != nil {
		t.Errorf("got %+v, want nil", loc)
	}
	if loc := (&Helper{}).SearchAndLocate(context.Background(), nil, "x", true); loc != nil {
		t.Errorf("nil app: got %+v, want nil", loc)
	}
}

func TestHighlight(t *testing.T) {
	doc := newFakeDoc()
	app := &fakeApp{doc: doc}

	if !HighlightText(context.Background(), app, 5, 3) {
		t.Error("HighlightText reported failure")
	}
	if doc.calls[0] != "clear" || doc.calls[1] != "range 5-8" {
		t.Errorf("calls = %v", doc.calls)
	}

	loc, err := HighlightByRange(context.Background(), app, 10, 4)
	if err != nil {
		t.Fatal(err)
	}
	if loc.Pos != 10 || loc.Len != 4 {
		t.Errorf("location = %+v", loc)
	}
	if len(doc.scrolled) != 1 {
		t.Errorf("scrolled %d times, want 1", len(doc.scrolled))
	}
}

func TestInsertAtCursor(t *testing.T) {
	ctx := context.Background()

	doc := newFakeDoc()
	if InsertAtCursor(ctx, &fakeApp{doc: doc}, "x") {
		t.Error("insert without selection reported success")
	}

	sel := &fakeSelection{}
	doc.selection = sel
	if !InsertAtCursor(ctx, &fakeApp{doc: doc}, "这是插入的文本") {
		t.Error("insert reported failure")
	}
	if len(sel.inserted) != 1 || sel.inserted[0] != "这是插入的文本" {
		t.Errorf("inserted = %q", sel.inserted)
	}

	sel.err = errors.New("read-only")
	if InsertAtCursor(ctx, &fakeApp{doc: doc}, "x") {
		t.Error("failed insert reported success")
	}
}
