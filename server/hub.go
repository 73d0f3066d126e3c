package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/tliron/commonlog"

	"github.com/alimasry/go-office-kit/office"
	"github.com/alimasry/go-office-kit/sdk"
	"github.com/alimasry/go-office-kit/store"
)

var log = commonlog.GetLogger("officekit.server")

// editorMount is the container every demo editor is mounted into.
const editorMount = "#editor"

type joinRequest struct {
	client *Client
	docID  string
	params json.RawMessage
}

// Config holds the settings shared by every session.
type Config struct {
	AppID  string
	Helper office.Helper
}

// Hub manages document sessions and routes clients to the right session.
type Hub struct {
	sdk      sdk.Initializer
	store    store.DocumentStore
	cfg      Config
	sessions map[string]*Session
	mu       sync.RWMutex

	joinDoc chan joinRequest
}

func NewHub(initializer sdk.Initializer, st store.DocumentStore, cfg Config) *Hub {
	return &Hub{
		sdk:      initializer,
		store:    st,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		joinDoc:  make(chan joinRequest, 64),
	}
}

// Run is the hub's main loop. Sessions it starts live until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case req := <-h.joinDoc:
			h.handleJoinDoc(ctx, req)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleJoinDoc(ctx context.Context, req joinRequest) {
	if req.docID == "" {
		req.client.sendError("missing docId")
		return
	}

	h.mu.Lock()
	s, ok := h.sessions[req.docID]
	if !ok {
		handle, err := office.Init(ctx, h.sdk, office.Config{
			ContainerSelector: editorMount,
			AppID:             h.cfg.AppID,
			FileID:            req.docID,
			Params:            withAuthor(req.params, req.client.Name),
		})
		if err == nil && handle == nil {
			err = errors.New("no document opened")
		}
		if err != nil {
			h.mu.Unlock()
			log.Errorf("hub: open %q: %v", req.docID, err)
			req.client.sendError("failed to open document: " + err.Error())
			return
		}

		s = newSession(req.docID, handle, h.cfg.Helper)
		h.sessions[req.docID] = s
		go s.Run(ctx)
		log.Infof("hub: opened %q in session %s", req.docID, s.ID)
	}
	h.mu.Unlock()

	s.join <- req.client
}

// withAuthor names the opening client as revision author unless params
// already name one.
func withAuthor(params json.RawMessage, name string) json.RawMessage {
	if name == "" || gjson.GetBytes(params, "author").Exists() {
		return params
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	out, err := sjson.SetBytes(params, "author", name)
	if err != nil {
		return params
	}
	return out
}

// GetSession returns the session for a document, if active.
func (h *Hub) GetSession(docID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[docID]
}

// Shutdown saves and closes every session.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
