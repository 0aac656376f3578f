package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"requestbin-hq/sieve/pkg/bin"
)

const (
	// DriverCGO selects github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"

	// DriverPureGo selects modernc.org/sqlite.
	DriverPureGo = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver is the database/sql driver name, DriverCGO or DriverPureGo.
	// Default: DriverCGO
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often the WAL is checkpointed. Zero disables
	// the background checkpoint.
	CheckpointInterval time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:               "data/sieve.db",
		Driver:             DriverCGO,
		MaxOpenConns:       10,
		MaxIdleConns:       5,
		WALMode:            true,
		BusyTimeout:        5 * time.Second,
		CheckpointInterval: 5 * time.Minute,
	}
}

// SQLiteStore implements bin.Store on SQLite.
//
// The quota reservation is a single conditional UPDATE, so concurrent
// captures against one bin serialize on SQLite's writer lock and can never
// push request_count past max_requests. Foreign keys are enabled on every
// connection through the DSN and captured requests reference their bin with
// ON DELETE CASCADE; DeleteBin additionally removes them in the same
// transaction.
type SQLiteStore struct {
	db        *sql.DB
	config    *SQLiteConfig
	logger    *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ bin.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database and applies the schema.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, bin.NewStorageError("sqlite", "open", errors.New("database path cannot be empty"))
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "bin.storage.sqlite")

	dsn, err := buildDSN(config)
	if err != nil {
		return nil, bin.NewStorageError("sqlite", "open", err)
	}

	db, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return nil, bin.NewStorageError("sqlite", "open", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	if config.WALMode && config.CheckpointInterval > 0 {
		s.wg.Add(1)
		go s.checkpointLoop()
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// buildDSN encodes the per-connection pragmas in the syntax of the chosen
// driver. Pragmas set with Exec would only reach one pooled connection.
func buildDSN(config *SQLiteConfig) (string, error) {
	busyMs := config.BusyTimeout.Milliseconds()
	switch config.Driver {
	case DriverCGO:
		dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d", config.Path, busyMs)
		if config.WALMode {
			dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
		}
		return dsn, nil
	case DriverPureGo:
		dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", config.Path, busyMs)
		if config.WALMode {
			dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		}
		return dsn, nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", config.Driver)
	}
}

// initialize creates the schema and verifies its version.
func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return bin.NewStorageError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created")

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion, time.Now().UnixNano()); err != nil {
		return bin.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return bin.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return bin.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// CreateBin inserts a bin and sets its ID.
func (s *SQLiteStore) CreateBin(ctx context.Context, b *bin.Bin) error {
	res, err := s.db.ExecContext(ctx, insertBinSQL,
		b.PublicCode,
		b.CreatedAt.UnixNano(),
		b.ExpiresAt.UnixNano(),
		b.MaxRequests,
		b.RequestCount,
	)
	if err != nil {
		return bin.NewStorageError("sqlite", "create_bin", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return bin.NewStorageError("sqlite", "create_bin", err)
	}
	b.ID = id
	return nil
}

// GetBinByCode returns the bin with the given public code.
func (s *SQLiteStore) GetBinByCode(ctx context.Context, code string) (*bin.Bin, error) {
	b, err := scanBin(s.db.QueryRowContext(ctx, selectBinByCodeSQL, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bin.NotFound(code)
	}
	if err != nil {
		return nil, bin.NewStorageError("sqlite", "get_bin", err)
	}
	return b, nil
}

// CodeExists reports whether the public code is taken.
func (s *SQLiteStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, codeExistsSQL, code).Scan(&exists); err != nil {
		return false, bin.NewStorageError("sqlite", "code_exists", err)
	}
	return exists, nil
}

// DeleteBin removes the bin and its captured requests in one transaction.
func (s *SQLiteStore) DeleteBin(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return bin.NewStorageError("sqlite", "delete_bin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, deleteRequestsByBinSQL, id); err != nil {
		return bin.NewStorageError("sqlite", "delete_requests", err)
	}

	res, err := tx.ExecContext(ctx, deleteBinSQL, id)
	if err != nil {
		return bin.NewStorageError("sqlite", "delete_bin", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return bin.NewStorageError("sqlite", "delete_bin", err)
	}
	if n == 0 {
		return binIDNotFound(id)
	}

	if err := tx.Commit(); err != nil {
		return bin.NewStorageError("sqlite", "delete_bin", err)
	}
	return nil
}

// ReserveSlot performs the conditional increment.
func (s *SQLiteStore) ReserveSlot(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, reserveSlotSQL, id)
	if err != nil {
		return false, bin.NewStorageError("sqlite", "reserve_slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, bin.NewStorageError("sqlite", "reserve_slot", err)
	}
	return n == 1, nil
}

// SaveRequest inserts a captured request.
func (s *SQLiteStore) SaveRequest(ctx context.Context, req *bin.CapturedRequest) error {
	headers, err := json.Marshal(nonNil(req.Headers))
	if err != nil {
		return bin.NewStorageError("sqlite", "save_request", fmt.Errorf("encode headers: %w", err))
	}
	params, err := json.Marshal(nonNil(req.QueryParams))
	if err != nil {
		return bin.NewStorageError("sqlite", "save_request", fmt.Errorf("encode query params: %w", err))
	}

	_, err = s.db.ExecContext(ctx, insertRequestSQL,
		req.ID,
		req.BinID,
		req.Method,
		req.Path,
		string(headers),
		string(params),
		req.Body,
		req.IPAddress,
		req.Timestamp.UnixNano(),
	)
	if err != nil {
		return bin.NewStorageError("sqlite", "save_request", err)
	}
	return nil
}

// ListRequests returns the captured requests of a bin, newest first.
func (s *SQLiteStore) ListRequests(ctx context.Context, binID int64) ([]*bin.CapturedRequest, error) {
	rows, err := s.db.QueryContext(ctx, selectRequestsSQL, binID)
	if err != nil {
		return nil, bin.NewStorageError("sqlite", "list_requests", err)
	}
	defer rows.Close()

	requests := make([]*bin.CapturedRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, bin.NewStorageError("sqlite", "scan_request", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, bin.NewStorageError("sqlite", "list_requests", err)
	}
	return requests, nil
}

// GetRequest returns one captured request of a bin.
func (s *SQLiteStore) GetRequest(ctx context.Context, binID int64, requestID string) (*bin.CapturedRequest, error) {
	req, err := scanRequest(s.db.QueryRowContext(ctx, selectRequestSQL, binID, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, requestNotFound(requestID)
	}
	if err != nil {
		return nil, bin.NewStorageError("sqlite", "get_request", err)
	}
	return req, nil
}

// CountRequests returns the number of stored captured requests of a bin.
func (s *SQLiteStore) CountRequests(ctx context.Context, binID int64) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, countRequestsSQL, binID).Scan(&n); err != nil {
		return 0, bin.NewStorageError("sqlite", "count_requests", err)
	}
	return n, nil
}

// ListExpired returns bins with expires_at at or before now.
func (s *SQLiteStore) ListExpired(ctx context.Context, now time.Time) ([]*bin.Bin, error) {
	rows, err := s.db.QueryContext(ctx, selectExpiredSQL, now.UnixNano())
	if err != nil {
		return nil, bin.NewStorageError("sqlite", "list_expired", err)
	}
	defer rows.Close()

	var bins []*bin.Bin
	for rows.Next() {
		b, err := scanBin(rows)
		if err != nil {
			return nil, bin.NewStorageError("sqlite", "scan_bin", err)
		}
		bins = append(bins, b)
	}
	if err := rows.Err(); err != nil {
		return nil, bin.NewStorageError("sqlite", "list_expired", err)
	}
	return bins, nil
}

// Stats returns aggregate counts.
func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*bin.Stats, error) {
	var st bin.Stats
	err := s.db.QueryRowContext(ctx, statsSQL, now.UnixNano()).Scan(&st.Total, &st.Active, &st.Requests)
	if err != nil {
		return nil, bin.NewStorageError("sqlite", "stats", err)
	}
	st.Expired = st.Total - st.Active
	return &st, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return bin.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close stops the checkpoint loop and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		if s.config.WALMode {
			if _, cerr := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); cerr != nil {
				s.logger.Warn("final WAL checkpoint failed", "error", cerr)
			}
		}

		if cerr := s.db.Close(); cerr != nil {
			err = bin.NewStorageError("sqlite", "close", cerr)
			return
		}
		s.logger.Info("SQLite storage closed")
	})
	return err
}

// checkpointLoop periodically folds the WAL back into the database file.
func (s *SQLiteStore) checkpointLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
				s.logger.Warn("WAL checkpoint failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBin(row rowScanner) (*bin.Bin, error) {
	var (
		b                  bin.Bin
		created, expiresAt int64
	)
	if err := row.Scan(&b.ID, &b.PublicCode, &created, &expiresAt, &b.MaxRequests, &b.RequestCount); err != nil {
		return nil, err
	}
	b.CreatedAt = time.Unix(0, created).UTC()
	b.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return &b, nil
}

func scanRequest(row rowScanner) (*bin.CapturedRequest, error) {
	var (
		req             bin.CapturedRequest
		headers, params string
		ts              int64
	)
	err := row.Scan(&req.ID, &req.BinID, &req.Method, &req.Path, &headers, &params, &req.Body, &req.IPAddress, &ts)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &req.Headers); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &req.QueryParams); err != nil {
		return nil, fmt.Errorf("decode query params: %w", err)
	}
	req.Timestamp = time.Unix(0, ts).UTC()
	return &req, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func binIDNotFound(id int64) *bin.Error {
	return &bin.Error{Kind: bin.KindNotFound, Message: fmt.Sprintf("bin %d not found", id)}
}

func requestNotFound(id string) *bin.Error {
	return &bin.Error{Kind: bin.KindNotFound, Message: fmt.Sprintf("captured request not found: %s", id)}
}
