// Package office is a helper layer over the document SDK: session setup,
// search and highlight, cursor insertion, read-only and save, and the
// track-changes workflow that replaces content and then finds, accepts or
// rejects the resulting revisions by timestamp.
//
// Every helper is a short sequence of calls into the SDK. None of them
// lock: callers must finish one helper before starting the next on the
// same document.
package office

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/tliron/commonlog"

	"github.com/alimasry/go-office-kit/sdk"
)

var log = commonlog.GetLogger("officekit.office")

const (
	// DefaultPace spaces consecutive revision mutations.
	DefaultPace = 300 * time.Millisecond
	// DefaultFreshWindow is how recent a revision must be for
	// FormatDocumentFont to treat it as its own.
	DefaultFreshWindow = 2000 * time.Millisecond
)

// ErrNoApplication is returned when a helper is given a nil application.
var ErrNoApplication = errors.New("office: no application")

// Helper carries the tunables of the revision helpers. The zero value is
// ready to use.
type Helper struct {
	// Pace is the delay between revision mutations when the document
	// cannot report that it has settled. Zero means DefaultPace; negative
	// disables pacing.
	Pace time.Duration
	// FreshWindow bounds the age of revisions FormatDocumentFont accepts.
	// Zero means DefaultFreshWindow.
	FreshWindow time.Duration
	// Notify, if set, receives warnings meant for the end user.
	Notify func(message string)
	// Now overrides the clock.
	Now func() time.Time
}

func (h *Helper) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Helper) pace() time.Duration {
	if h.Pace == 0 {
		return DefaultPace
	}
	return h.Pace
}

func (h *Helper) freshWindow() time.Duration {
	if h.FreshWindow <= 0 {
		return DefaultFreshWindow
	}
	return h.FreshWindow
}

// warn logs message and, when surface is set, hands it to Notify.
func (h *Helper) warn(message string, surface bool) {
	log.Warning(message)
	if surface && h.Notify != nil {
		h.Notify(message)
	}
}

// Handle pairs an editor session with its application.
type Handle struct {
	Session sdk.Session
	App     sdk.Application
}

// Close signals the SDK to tear the session down.
func (h *Handle) Close(ctx context.Context) error {
	if h == nil || h.Session == nil {
		return nil
	}
	return h.Session.Destroy(ctx)
}

// Config describes the editor to open.
type Config struct {
	ContainerSelector string
	AppID             string
	FileID            string
	ReadOnly          bool
	Token             string
	Simple            bool
	RefreshToken      sdk.RefreshTokenFunc

	OnReady func(session sdk.Session, app sdk.Application)
	OnError func(err error)

	// Params is passed to the SDK untouched.
	Params json.RawMessage
}

// Init opens the document described by cfg and makes sure track-changes
// is on. It returns nil without calling the SDK when cfg.FileID is empty.
// Failures are logged, passed to cfg.OnError and returned.
func Init(ctx context.Context, initializer sdk.Initializer, cfg Config) (*Handle, error) {
	if cfg.FileID == "" {
		return nil, nil
	}

	mode := sdk.ModeNormal
	if cfg.Simple {
		mode = sdk.ModeSimple
	}
	opts := sdk.Options{
		Mode:         mode,
		Mount:        cfg.ContainerSelector,
		OfficeType:   sdk.Writer,
		AppID:        cfg.AppID,
		FileID:       cfg.FileID,
		Token:        cfg.Token,
		RefreshToken: cfg.RefreshToken,
		Custom:       cfg.Params,
	}

	h, err := open(ctx, initializer, opts, cfg)
	if err != nil {
		log.Errorf("init %q: %v", cfg.FileID, err)
		if cfg.OnError != nil {
			cfg.OnError(err)
		}
		return nil, err
	}
	return h, nil
}

func open(ctx context.Context, initializer sdk.Initializer, opts sdk.Options, cfg Config) (*Handle, error) {
	session, err := initializer.Init(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("init sdk: %w", err)
	}
	if err := session.Ready(ctx); err != nil {
		return nil, fmt.Errorf("wait ready: %w", err)
	}
	app, err := session.Application(ctx)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	doc, err := app.ActiveDocument(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active document: %w", err)
	}
	if err := doc.SetReadOnly(ctx, cfg.ReadOnly); err != nil {
		return nil, fmt.Errorf("set read-only: %w", err)
	}
	if cfg.OnReady != nil {
		cfg.OnReady(session, app)
	}

	tracking, err := doc.TrackRevisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("query track revisions: %w", err)
	}
	if !tracking {
		if err := session.ExecuteCommandBar(ctx, sdk.CommandTrackChanges); err != nil {
			return nil, fmt.Errorf("enable track changes: %w", err)
		}
	}
	return &Handle{Session: session, App: app}, nil
}

// Save saves the session's document. A nil session is a no-op.
func Save(ctx context.Context, session sdk.Session) error {
	if session == nil {
		return nil
	}
	return session.Save(ctx)
}

// GetApplication returns the session's application, or nil for a nil session.
func GetApplication(ctx context.Context, session sdk.Session) (sdk.Application, error) {
	if session == nil {
		return nil, nil
	}
	return session.Application(ctx)
}

// SetReadOnly toggles the read-only state of the active document.
func SetReadOnly(ctx context.Context, app sdk.Application, readOnly bool) error {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		return err
	}
	return doc.SetReadOnly(ctx, readOnly)
}

// DocLength returns the document length without the trailing paragraph mark.
func DocLength(ctx context.Context, app sdk.Application) (int, error) {
	doc, err := activeDocument(ctx, app)
	if err != nil {
		return 0, err
	}
	r, err := doc.DocumentRange(ctx)
	if err != nil {
		return 0, fmt.Errorf("document range: %w", err)
	}
	return max(r.End-1, 0), nil
}

const (
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
)

// RandomString returns n random ASCII letters drawn from the selected
// cases. With neither case selected it falls back to lower case.
func RandomString(n int, upper, lower bool) string {
	if n <= 0 {
		return ""
	}
	var chars string
	if upper {
		chars += upperLetters
	}
	if lower {
		chars += lowerLetters
	}
	if chars == "" {
		chars = lowerLetters
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = chars[rand.IntN(len(chars))]
	}
	return string(b)
}

func activeDocument(ctx context.Context, app sdk.Application) (sdk.Document, error) {
	if app == nil {
		return nil, ErrNoApplication
	}
	doc, err := app.ActiveDocument(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active document: %w", err)
	}
	return doc, nil
}
