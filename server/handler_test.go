package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alimasry/go-office-kit/memdoc"
	"github.com/alimasry/go-office-kit/store"
)

func setupTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	st := store.NewMemoryStore()
	hub := NewHub(memdoc.New(st), st, Config{AppID: "demo"})
	runCtx, cancel := context.WithCancel(context.Background())
	go hub.Run(runCtx)
	server := httptest.NewServer(NewHandler(hub, t.TempDir()))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return server, hub
}

func wsConnect(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	return conn
}

func readWsMsg(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestHandler_WebSocketConnect(t *testing.T) {
	server, _ := setupTestServer(t)

	conn := wsConnect(t, server)
	defer conn.Close()

	if err := conn.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "test-doc"}); err != nil {
		t.Fatal(err)
	}
	resp := readWsMsg(t, conn)
	if resp.Type != MsgDoc {
		t.Errorf("expected doc, got %q", resp.Type)
	}
}

func TestHandler_CommandBeforeJoin(t *testing.T) {
	server, _ := setupTestServer(t)
	conn := wsConnect(t, server)
	defer conn.Close()

	conn.WriteJSON(ClientMessage{Type: CmdSearch, Query: "x"})
	if resp := readWsMsg(t, conn); resp.Type != MsgError || resp.Message != "not joined to a document" {
		t.Errorf("got %+v", resp)
	}
	conn.WriteJSON(ClientMessage{Type: "op"})
	if resp := readWsMsg(t, conn); resp.Type != MsgError {
		t.Errorf("expected error for unknown type, got %q", resp.Type)
	}
}

func TestHandler_TwoClientsShareDocument(t *testing.T) {
	server, _ := setupTestServer(t)

	conn1 := wsConnect(t, server)
	defer conn1.Close()
	conn2 := wsConnect(t, server)
	defer conn2.Close()

	conn1.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "shared", Params: contentParams(contract)})
	if doc := readWsMsg(t, conn1); doc.Type != MsgDoc {
		t.Fatalf("c1 expected doc, got %q", doc.Type)
	}

	conn2.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "shared"})
	doc2 := readWsMsg(t, conn2)
	if doc2.Type != MsgDoc || doc2.State.Content != contract {
		t.Fatalf("c2 got %+v", doc2)
	}

	if joined := readWsMsg(t, conn1); joined.Type != MsgJoin {
		t.Fatalf("c1 expected join notification, got %q", joined.Type)
	}

	conn1.WriteJSON(ClientMessage{Type: CmdReplace, Replace: "两百万", Pos: 5, Length: 3})
	if reply := readWsMsg(t, conn1); reply.Type != MsgResult {
		t.Fatalf("expected result, got %+v", reply)
	}

	broadcast := readWsMsg(t, conn2)
	if broadcast.Type != MsgDoc {
		t.Fatalf("expected doc broadcast, got %q", broadcast.Type)
	}
	if broadcast.State.Content != "合同金额为两百万元，付款期限三十天。" {
		t.Errorf("content = %q", broadcast.State.Content)
	}
	if logMsg := readWsMsg(t, conn2); logMsg.Type != MsgLog || len(logMsg.Log) == 0 {
		t.Errorf("expected log, got %+v", logMsg)
	}
}

func TestHandler_ListDocuments(t *testing.T) {
	server, _ := setupTestServer(t)

	conn := wsConnect(t, server)
	defer conn.Close()
	conn.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "92", Params: contentParams(contract)})
	readWsMsg(t, conn)

	resp, err := http.Get(server.URL + "/api/docs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var docs []docSummary
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "92" || docs[0].Length != 18 || !docs[0].Open {
		t.Errorf("docs = %+v", docs)
	}
}

func TestHandler_LeaveAndJoinAnotherDocument(t *testing.T) {
	server, hub := setupTestServer(t)
	conn := wsConnect(t, server)
	defer conn.Close()

	conn.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "first", Params: contentParams("第一份")})
	if resp := readWsMsg(t, conn); resp.Type != MsgDoc || resp.State.Content != "第一份" {
		t.Fatalf("first join = %+v", resp)
	}

	conn.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "second"})
	if resp := readWsMsg(t, conn); resp.Type != MsgError || resp.Message != "already joined to a document" {
		t.Fatalf("second join without leaving = %+v", resp)
	}

	conn.WriteJSON(ClientMessage{Type: MsgLeave})
	if resp := readWsMsg(t, conn); resp.Type != MsgLeave || resp.DocID != "first" {
		t.Fatalf("leave = %+v", resp)
	}

	conn.WriteJSON(ClientMessage{Type: MsgJoin, DocID: "second", Params: contentParams("第二份")})
	resp := readWsMsg(t, conn)
	if resp.Type != MsgDoc || resp.DocID != "second" || resp.State.Content != "第二份" {
		t.Fatalf("join after leave = %+v", resp)
	}
	if hub.GetSession("first") == nil {
		t.Error("leaving closed the first document's session")
	}
}
