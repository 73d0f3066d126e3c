package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alimasry/go-office-kit/ot"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// docSummary is one entry of GET /api/docs.
type docSummary struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	Length    int       `json:"length"`
	Revisions int       `json:"revisions"`
	Open      bool      `json:"open"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewHandler creates the HTTP handler with all routes. Static files are
// served from staticDir.
func NewHandler(hub *Hub, staticDir string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/", http.FileServer(http.Dir(staticDir)))

	mux.HandleFunc("GET /api/docs", func(w http.ResponseWriter, r *http.Request) {
		docs, err := hub.store.List(r.Context())
		if err != nil {
			log.Errorf("list documents: %v", err)
			http.Error(w, "failed to list documents", http.StatusInternalServerError)
			return
		}
		out := make([]docSummary, len(docs))
		for i, d := range docs {
			out[i] = docSummary{
				ID:        d.ID,
				Version:   d.Version,
				Length:    ot.RuneLen(d.Content),
				Revisions: len(d.Revisions),
				Open:      hub.GetSession(d.ID) != nil,
				UpdatedAt: d.UpdatedAt,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("websocket upgrade error: %v", err)
			return
		}
		client := newClient(hub, conn)
		go client.WritePump()
		go client.ReadPump()
	})

	return mux
}
