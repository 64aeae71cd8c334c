package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	ferrors "finledger/internal/errors"
	"finledger/internal/schema"
	"finledger/internal/slogutil"
)

// ChangeListener is told which tables a committed transaction modified.
// It is called after the commit, outside the write lock, in the committing goroutine.
type ChangeListener interface {
	TablesChanged(tables []string)
}

// ChangeFunc adapts a function to ChangeListener.
type ChangeFunc func(tables []string)

// TablesChanged implements ChangeListener.
func (f ChangeFunc) TablesChanged(tables []string) { f(tables) }

// Options configure a Store.
type Options struct {
	// Path is the SQLite file. Its directory is created on Open.
	Path string
	// Registry declares the schema history; defaults to schema.Default().
	Registry *schema.Registry
	// Policy decides what happens when the store cannot be upgraded; defaults to HaltPolicy.
	Policy UpgradeFailurePolicy
	// BusyTimeout is how long SQLite waits on a locked database file.
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

// Store is the embedded document store: one table per entity, JSON documents keyed by id.
// It must be opened before use and closed by the caller.
type Store struct {
	path        string
	registry    *schema.Registry
	policy      UpgradeFailurePolicy
	busyTimeout time.Duration
	logger      *slog.Logger

	mu   sync.RWMutex // guards conn
	conn *sql.DB

	// writeMu serializes write transactions; SQLite allows one writer anyway
	writeMu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[int]ChangeListener
	nextID      int
}

// New creates a closed store. Call Open before use.
func New(opts Options) *Store {
	registry := opts.Registry
	if registry == nil {
		registry = schema.Default()
	}
	policy := opts.Policy
	if policy == nil {
		policy = HaltPolicy{}
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return &Store{
		path:        opts.Path,
		registry:    registry,
		policy:      policy,
		busyTimeout: busy,
		logger:      slogutil.OrDiscard(opts.Logger),
		listeners:   make(map[int]ChangeListener),
	}
}

// Open opens the database file and brings it to the latest schema version.
// A schema upgrade failure is handed to the configured UpgradeFailurePolicy;
// if the policy allows it, Open retries once against a fresh store.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	if s.path == "" {
		return ferrors.Newf(ferrors.InternalError, "store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := s.openAndMigrate(ctx)
	if err != nil {
		if !ferrors.Is(err, ferrors.SchemaUpgradeFailed) {
			return err
		}
		if perr := s.policy.HandleUpgradeFailure(ctx, s.path, err); perr != nil {
			return perr
		}
		conn, err = s.openAndMigrate(ctx)
		if err != nil {
			return err
		}
	}

	s.conn = conn
	return nil
}

func (s *Store) openAndMigrate(ctx context.Context) (*sql.DB, error) {
	isNew := !fileExists(s.path)

	conn, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isNew {
		s.logger.Info("Creating new store", "path", s.path)
	} else {
		s.logger.Debug("Running store migrations", "path", s.path)
	}

	if err := s.migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// dsn builds the modernc DSN. Pragmas go in the DSN so every pooled connection gets them.
func (s *Store) dsn() string {
	pragmas := []string{
		"journal_mode(WAL)",   // readers never block the writer
		"synchronous(NORMAL)", // durable at checkpoint, fast commits
		fmt.Sprintf("busy_timeout(%d)", s.busyTimeout.Milliseconds()),
		"temp_store(MEMORY)",
	}
	params := make([]string, 0, len(pragmas)+1)
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	params = append(params, "_txlock=immediate")
	return "file:" + s.path + "?" + strings.Join(params, "&")
}

// Close detaches every change listener and closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listenersMu.Lock()
	clear(s.listeners)
	s.listenersMu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Registry returns the schema registry the store was opened with.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

func (s *Store) db() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil, ferrors.Newf(ferrors.StoreClosed, "store %s is not open", s.path)
	}
	return s.conn, nil
}

// AddListener registers l for change notifications and returns a function removing it.
func (s *Store) AddListener(l ChangeListener) (remove func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) notify(changed map[string]bool) {
	if len(changed) == 0 {
		return
	}
	tables := make([]string, 0, len(changed))
	for t := range changed {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]ChangeListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l.TablesChanged(tables)
	}
}

// checkTables rejects names absent from the latest schema.
func (s *Store) checkTables(tables ...string) error {
	for _, t := range tables {
		if _, ok := s.registry.Table(t); !ok {
			return ferrors.Newf(ferrors.UnknownTable, "unknown table %q", t)
		}
	}
	return nil
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.New().String()
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
