package server

import (
	"encoding/json"
	"time"

	"github.com/alimasry/go-office-kit/memdoc"
)

// Message types exchanged over WebSocket.
const (
	MsgJoin   = "join"
	MsgLeave  = "leave"
	MsgDoc    = "doc"
	MsgResult = "result"
	MsgLog    = "log"
	MsgError  = "error"
)

// Commands a joined client can send.
const (
	CmdSearch    = "search"
	CmdClear     = "clear"
	CmdHighlight = "highlight"
	CmdInsert    = "insert"
	CmdReplace   = "replace"
	CmdAccept    = "accept"
	CmdReject    = "reject"
	CmdLocate    = "locate"
	CmdFont      = "font"
	CmdSave      = "save"
	CmdReadOnly  = "readonly"
	CmdRevisions = "revisions"
)

var commands = map[string]bool{
	CmdSearch: true, CmdClear: true, CmdHighlight: true, CmdInsert: true,
	CmdReplace: true, CmdAccept: true, CmdReject: true, CmdLocate: true,
	CmdFont: true, CmdSave: true, CmdReadOnly: true, CmdRevisions: true,
}

// ClientMessage is a message from client to server. Type is MsgJoin,
// MsgLeave or one of the commands; the other fields are the command's
// arguments.
type ClientMessage struct {
	Type     string          `json:"type"`
	DocID    string          `json:"docId,omitempty"`
	Query    string          `json:"query,omitempty"`
	Text     string          `json:"text,omitempty"`
	Replace  string          `json:"replace,omitempty"`
	Pos      int             `json:"pos,omitempty"`
	Length   int             `json:"length,omitempty"`
	Date     time.Time       `json:"date,omitzero"`
	Font     string          `json:"font,omitempty"`
	ReadOnly bool            `json:"readOnly,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type     string          `json:"type"`
	DocID    string          `json:"docId,omitempty"`
	Command  string          `json:"command,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	State    *memdoc.State   `json:"state,omitempty"`
	Log      []LogEntry      `json:"log,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	Name     string          `json:"name,omitempty"`
	Color    string          `json:"color,omitempty"`
	Message  string          `json:"message,omitempty"`
	Clients  []ClientInfo    `json:"clients,omitempty"`
}

// ClientInfo describes a connected user.
type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// LogEntry is one line of a session's running log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}
