package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alimasry/go-office-kit/memdoc"
	"github.com/alimasry/go-office-kit/office"
)

const (
	// logSize is how many running-log entries a session keeps.
	logSize = 20
	// commandTimeout bounds one command, pacing included.
	commandTimeout = 30 * time.Second
)

type command struct {
	client *Client
	msg    ClientMessage
}

// departure removes a client from a session. gone means the connection
// is closed; otherwise the client only left this document.
type departure struct {
	client *Client
	gone   bool
}

// Session drives one open document for its clients. All commands are
// serialized through a single goroutine.
type Session struct {
	ID     string
	docID  string
	handle *office.Handle
	helper office.Helper

	clients  map[*Client]bool
	log      []LogEntry // newest first
	lastDate time.Time  // date of the last replacement

	incoming chan command
	join     chan *Client
	leave    chan departure
	stop     chan struct{}
	done     chan struct{}
}

func newSession(docID string, handle *office.Handle, helper office.Helper) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		docID:    docID,
		handle:   handle,
		clients:  make(map[*Client]bool),
		incoming: make(chan command, 64),
		join:     make(chan *Client, 16),
		leave:    make(chan departure, 16),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.helper = helper
	s.helper.Notify = func(message string) { s.addLog("warning", message) }
	return s
}

// Run is the session's main loop. It serializes all commands.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case d := <-s.leave:
			s.handleLeave(d)
		case cmd := <-s.incoming:
			s.handleCommand(ctx, cmd)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the loop, saves the document and closes the editor.
func (s *Session) Close(ctx context.Context) error {
	close(s.stop)
	<-s.done
	if err := office.Save(ctx, s.handle.Session); err != nil {
		return fmt.Errorf("save %q: %w", s.docID, err)
	}
	return s.handle.Close(ctx)
}

// submit queues a command. It reports false once the session has stopped.
func (s *Session) submit(cmd command) bool {
	select {
	case s.incoming <- cmd:
		return true
	case <-s.done:
		return false
	}
}

// leaveRequest queues c's departure. A stopped session only closes a
// gone client's channel.
func (s *Session) leaveRequest(c *Client, gone bool) {
	select {
	case s.leave <- departure{client: c, gone: gone}:
	case <-s.done:
		if gone {
			c.closeSend()
		}
	}
}

func (s *Session) handleJoin(c *Client) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	s.clients[c] = true
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	c.sendMsg(ServerMessage{
		Type:    MsgDoc,
		DocID:   s.docID,
		State:   s.state(context.Background()),
		Log:     s.log,
		Clients: s.clientInfos(),
	})

	for other := range s.clients {
		if other != c {
			other.sendMsg(ServerMessage{
				Type:     MsgJoin,
				ClientID: c.ID,
				Name:     c.Name,
				Color:    c.Color,
			})
		}
	}
}

func (s *Session) handleLeave(d departure) {
	c := d.client
	if _, ok := s.clients[c]; !ok {
		if d.gone {
			c.closeSend()
		}
		return
	}
	delete(s.clients, c)
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	if d.gone {
		c.closeSend()
	} else {
		c.sendMsg(ServerMessage{Type: MsgLeave, DocID: s.docID, ClientID: c.ID})
	}

	for other := range s.clients {
		other.sendMsg(ServerMessage{
			Type:     MsgLeave,
			ClientID: c.ID,
		})
	}
}

// handleCommand runs one command, answers the sender if it is still here
// and broadcasts the new document state and log to every client.
func (s *Session) handleCommand(ctx context.Context, cmd command) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	result, err := s.execute(ctx, cmd.msg)
	if err != nil {
		s.addLog("error", fmt.Sprintf("%s: %v", cmd.msg.Type, err))
	}
	if s.clients[cmd.client] {
		if err != nil {
			cmd.client.sendMsg(ServerMessage{Type: MsgError, Command: cmd.msg.Type, Message: err.Error()})
		} else {
			data, _ := json.Marshal(result)
			cmd.client.sendMsg(ServerMessage{Type: MsgResult, Command: cmd.msg.Type, Result: data})
		}
	}

	state := s.state(ctx)
	for c := range s.clients {
		c.sendMsg(ServerMessage{Type: MsgDoc, DocID: s.docID, State: state})
		c.sendMsg(ServerMessage{Type: MsgLog, DocID: s.docID, Log: s.log})
	}
}

// execute maps a command onto the office helpers.
func (s *Session) execute(ctx context.Context, msg ClientMessage) (any, error) {
	app := s.handle.App
	switch msg.Type {
	case CmdSearch:
		loc := s.helper.SearchAndLocate(ctx, app, msg.Query, true)
		if loc != nil {
			s.addLog("info", fmt.Sprintf("found %q at %d (%d hits)", msg.Query, loc.Pos, len(loc.Matches)))
		}
		return loc, nil

	case CmdClear:
		return nil, office.ClearHighlight(ctx, app)

	case CmdHighlight:
		return office.HighlightByRange(ctx, app, msg.Pos, msg.Length)

	case CmdInsert:
		ok := office.InsertAtCursor(ctx, app, msg.Text)
		if ok {
			s.addLog("info", fmt.Sprintf("inserted %q", msg.Text))
		} else {
			s.addLog("warning", "insert failed: no cursor or document refused the edit")
		}
		return ok, nil

	case CmdReplace:
		res, err := s.helper.ReplaceWithRevision(ctx, app, msg.Text, msg.Replace, msg.Pos, msg.Length)
		if err != nil {
			return nil, err
		}
		s.lastDate = res.ModifyDate
		s.addLog("info", fmt.Sprintf("replaced %d+%d with %q, revisions dated %s",
			msg.Pos, msg.Length, msg.Replace, res.ModifyDate.Format(time.DateTime)))
		return res, nil

	case CmdAccept, CmdReject:
		date := s.dateOf(msg)
		infos, err := office.RevisionsByDate(ctx, app, date)
		if err != nil {
			return nil, err
		}
		action := office.Accept
		if msg.Type == CmdReject {
			action = office.Reject
		}
		n, err := s.helper.HandleMatchingRevisions(ctx, app, infos, action)
		s.addLog("info", fmt.Sprintf("%s: %d of %d revisions", action, n, len(infos)))
		return n, err

	case CmdLocate:
		return s.helper.HandleRevisionContent(ctx, app, s.dateOf(msg), false)

	case CmdFont:
		n, err := s.helper.FormatDocumentFont(ctx, app, msg.Font)
		if err == nil {
			s.addLog("info", fmt.Sprintf("font set to %s, %d revisions accepted", msg.Font, n))
		}
		return n, err

	case CmdSave:
		if err := office.Save(ctx, s.handle.Session); err != nil {
			return nil, err
		}
		s.addLog("info", "saved")
		return true, nil

	case CmdReadOnly:
		if err := office.SetReadOnly(ctx, app, msg.ReadOnly); err != nil {
			return nil, err
		}
		s.addLog("info", fmt.Sprintf("read-only %v", msg.ReadOnly))
		return msg.ReadOnly, nil

	case CmdRevisions:
		return office.ListRevisions(ctx, app)
	}
	return nil, fmt.Errorf("unknown command %q", msg.Type)
}

// dateOf returns the command's date, defaulting to the last replacement's.
func (s *Session) dateOf(msg ClientMessage) time.Time {
	if !msg.Date.IsZero() {
		return msg.Date
	}
	return s.lastDate
}

func (s *Session) addLog(level, message string) {
	switch level {
	case "error":
		log.Errorf("session %s (%s): %s", s.docID, s.ID, message)
	case "warning":
		log.Warningf("session %s (%s): %s", s.docID, s.ID, message)
	default:
		log.Infof("session %s (%s): %s", s.docID, s.ID, message)
	}
	entry := LogEntry{Time: time.Now(), Level: level, Message: message}
	s.log = append([]LogEntry{entry}, s.log[:min(len(s.log), logSize-1)]...)
}

type stateReporter interface {
	State() memdoc.State
}

// state renders the document when the SDK can report it.
func (s *Session) state(ctx context.Context) *memdoc.State {
	doc, err := s.handle.App.ActiveDocument(ctx)
	if err != nil {
		return nil
	}
	r, ok := doc.(stateReporter)
	if !ok {
		return nil
	}
	st := r.State()
	return &st
}

func (s *Session) clientInfos() []ClientInfo {
	infos := make([]ClientInfo, 0, len(s.clients))
	for c := range s.clients {
		infos = append(infos, c.Info())
	}
	return infos
}
