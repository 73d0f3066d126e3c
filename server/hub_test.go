package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alimasry/go-office-kit/memdoc"
	"github.com/alimasry/go-office-kit/store"
)

func startHub(t *testing.T, st store.DocumentStore) *Hub {
	t.Helper()
	hub := NewHub(memdoc.New(st), st, Config{AppID: "demo"})
	runCtx, cancel := context.WithCancel(context.Background())
	go hub.Run(runCtx)
	t.Cleanup(func() {
		hub.Shutdown(context.Background())
		cancel()
	})
	return hub
}

func TestHub_CreateSessionOnJoin(t *testing.T) {
	st := store.NewMemoryStore()
	hub := startHub(t, st)

	c := mockClient("c1")
	c.hub = hub
	hub.joinDoc <- joinRequest{client: c, docID: "new-doc", params: contentParams(contract)}

	msg := recvMsg(t, c)
	if msg.Type != MsgDoc {
		t.Fatalf("expected doc, got %q", msg.Type)
	}
	if msg.DocID != "new-doc" || msg.State.Content != contract {
		t.Errorf("docId = %q, content = %q", msg.DocID, msg.State.Content)
	}

	if s := hub.GetSession("new-doc"); s == nil || s.ID == "" {
		t.Error("session not created")
	}
	if _, err := st.Get(ctx(), "new-doc"); err != nil {
		t.Errorf("document not created in store: %v", err)
	}
}

func TestHub_JoinExistingDoc(t *testing.T) {
	st := store.NewMemoryStore()
	st.Create(ctx(), "existing", "hello world")
	hub := startHub(t, st)

	c := mockClient("c1")
	c.hub = hub
	// Params only seed new documents.
	hub.joinDoc <- joinRequest{client: c, docID: "existing", params: contentParams("ignored")}

	msg := recvMsg(t, c)
	if msg.State == nil || msg.State.Content != "hello world" {
		t.Errorf("state = %+v, want content %q", msg.State, "hello world")
	}
}

func TestHub_JoinWithoutDocID(t *testing.T) {
	hub := startHub(t, store.NewMemoryStore())
	c := mockClient("c1")
	hub.joinDoc <- joinRequest{client: c}
	if msg := recvMsg(t, c); msg.Type != MsgError {
		t.Errorf("expected error, got %q", msg.Type)
	}
}

func TestHub_ShutdownSaves(t *testing.T) {
	st := store.NewMemoryStore()
	hub := NewHub(memdoc.New(st), st, Config{})
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(runCtx)

	c := mockClient("c1")
	hub.joinDoc <- joinRequest{client: c, docID: "92", params: contentParams("abc")}
	recvMsg(t, c)

	s := hub.GetSession("92")
	s.incoming <- command{client: c, msg: ClientMessage{Type: CmdInsert, Text: "> "}}
	recvMsg(t, c) // result
	recvMsg(t, c) // doc
	recvMsg(t, c) // log

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := hub.Shutdown(shutdownCtx); err != nil {
		t.Fatal(err)
	}
	info, err := st.Get(ctx(), "92")
	if err != nil {
		t.Fatal(err)
	}
	if info.Content != "> abc" || len(info.Revisions) != 1 {
		t.Errorf("stored %q with %d revisions", info.Content, len(info.Revisions))
	}
	if hub.GetSession("92") != nil {
		t.Error("session still registered after shutdown")
	}
}

func TestWithAuthor(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   string
	}{
		{"empty params", ``, `{"author":"Editor 1"}`},
		{"adds author", `{"content":"x"}`, `{"content":"x","author":"Editor 1"}`},
		{"keeps author", `{"author":"审核员"}`, `{"author":"审核员"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(withAuthor(json.RawMessage(tt.params), "Editor 1")); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
