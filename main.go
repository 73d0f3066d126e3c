package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/alimasry/go-office-kit/memdoc"
	"github.com/alimasry/go-office-kit/office"
	"github.com/alimasry/go-office-kit/server"
	"github.com/alimasry/go-office-kit/store"
)

var log = commonlog.GetLogger("officekit")

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	storeKind := flag.String("store", "memory", "document store: memory, sqlite or firestore")
	sqlitePath := flag.String("sqlite", "officekit.db", "SQLite database path for -store=sqlite")
	project := flag.String("firestore-project", os.Getenv("FIRESTORE_PROJECT"), "Firestore project for -store=firestore")
	flushInterval := flag.Duration("flush-interval", 5*time.Second, "write-back interval for sqlite and firestore stores")
	appID := flag.String("app-id", "officekit-demo", "application id passed to the document SDK")
	pace := flag.Duration("pace", office.DefaultPace, "delay between revision accepts/rejects when the document cannot report it has settled")
	freshWindow := flag.Duration("fresh-window", office.DefaultFreshWindow, "max age of revisions auto-accepted after a font change")
	verbosity := flag.Int("v", 1, "log verbosity")
	logfile := flag.String("logfile", "", "log to this file instead of stderr")
	staticDir := flag.String("static", "static", "directory served at /")
	flag.Parse()

	var logPath *string
	if *logfile != "" {
		logPath = logfile
	}
	commonlog.Configure(*verbosity, logPath)

	if err := run(*addr, *storeKind, *sqlitePath, *project, *flushInterval, *appID, *staticDir,
		office.Helper{Pace: *pace, FreshWindow: *freshWindow}); err != nil {
		log.Criticalf("%v", err)
		os.Exit(1)
	}
}

func run(addr, storeKind, sqlitePath, project string, flushInterval time.Duration, appID, staticDir string, helper office.Helper) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, storeKind, sqlitePath, project, flushInterval)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := server.NewHub(memdoc.New(st), st, server.Config{AppID: appID, Helper: helper})
	srv := &http.Server{Addr: addr, Handler: server.NewHandler(hub, staticDir)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Noticef("starting server on %s with %s store", addr, storeKind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, hub.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// openStore builds the document store. Remote and on-disk stores sit
// behind a write-back cache.
func openStore(ctx context.Context, kind, sqlitePath, project string, flushInterval time.Duration) (store.DocumentStore, func(), error) {
	switch kind {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil

	case "sqlite":
		backing, err := store.NewSQLiteStore(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		cached := store.NewCachedStore(backing, flushInterval)
		return cached, func() {
			cached.Close()
			backing.Close()
		}, nil

	case "firestore":
		if project == "" {
			return nil, nil, errors.New("-firestore-project or FIRESTORE_PROJECT is required")
		}
		client, err := firestore.NewClient(ctx, project)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		cached := store.NewCachedStore(store.NewFirestoreStore(client), flushInterval)
		return cached, func() {
			cached.Close()
			client.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", kind)
}
