package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"vidshare/internal/catalog/migrations"
	"vidshare/internal/logging"
	"vidshare/internal/models"
)

const opTimeout = 5 * time.Second

// SQLCatalog stores entries in Postgres (lib/pq) or SQLite (go-sqlite3).
type SQLCatalog struct {
	db     *sql.DB
	driver string
}

// NewSQLCatalog wraps an open handle. driver is "postgres" or "sqlite3".
func NewSQLCatalog(db *sql.DB, driver string) *SQLCatalog {
	return &SQLCatalog{db: db, driver: driver}
}

// OpenSQL connects, pings and migrates. A failed ping is reported as
// ErrStorageUnavailable.
func OpenSQL(ctx context.Context, dsn string, log logging.Logger) (*SQLCatalog, error) {
	driverName, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w: %w", ErrStorageUnavailable, err)
	}

	c := NewSQLCatalog(db, driverName)
	if err := c.Migrate(ctx, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

// parseDSN maps a connection string to a registered driver.
func parseDSN(dsn string) (driverName, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", withSQLiteDefaults(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "sqlite3://"):
		return "sqlite3", withSQLiteDefaults(strings.TrimPrefix(dsn, "sqlite3://")), nil
	case strings.HasPrefix(dsn, "file:"):
		return "sqlite3", withSQLiteDefaults(dsn), nil
	case strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname="):
		return "postgres", dsn, nil
	}
	return "", "", fmt.Errorf("unsupported database DSN %q", redact(dsn))
}

func withSQLiteDefaults(source string) string {
	if strings.Contains(source, "_busy_timeout") {
		return source
	}
	sep := "?"
	if strings.Contains(source, "?") {
		sep = "&"
	}
	return source + sep + "_busy_timeout=5000"
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}

// Migrate applies the embedded schema for the current dialect.
func (c *SQLCatalog) Migrate(ctx context.Context, log logging.Logger) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(gooseLogger{ctx: ctx, log: log})
	if err := goose.SetDialect(c.driver); err != nil {
		return err
	}
	return goose.UpContext(ctx, c.db, c.driver)
}

func (c *SQLCatalog) Create(ctx context.Context, f *models.UploadedFile) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		INSERT INTO uploaded_files (filename, original_name, size_bytes, mime_type, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (filename) DO NOTHING`

	res, err := c.db.ExecContext(ctx, query,
		f.Filename, f.OriginalName, f.Size, f.MimeType, f.Checksum, f.CreatedAt.UTC())
	if err != nil {
		return classify("insert entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return ErrDuplicateKey
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (c *SQLCatalog) Replace(ctx context.Context, f *models.UploadedFile) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		INSERT INTO uploaded_files (filename, original_name, size_bytes, mime_type, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (filename) DO UPDATE SET
			original_name = excluded.original_name,
			size_bytes = excluded.size_bytes,
			mime_type = excluded.mime_type,
			checksum = excluded.checksum,
			created_at = excluded.created_at`

	_, err := c.db.ExecContext(ctx, query,
		f.Filename, f.OriginalName, f.Size, f.MimeType, f.Checksum, f.CreatedAt.UTC())
	if err != nil {
		return classify("replace entry", err)
	}
	return nil
}

func (c *SQLCatalog) Get(ctx context.Context, filename string) (*models.UploadedFile, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT filename, original_name, size_bytes, mime_type, checksum, created_at
		FROM uploaded_files WHERE filename = $1`

	f := &models.UploadedFile{}
	err := c.db.QueryRowContext(ctx, query, filename).
		Scan(&f.Filename, &f.OriginalName, &f.Size, &f.MimeType, &f.Checksum, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify("select entry", err)
	}
	return f, nil
}

func (c *SQLCatalog) List(ctx context.Context) ([]*models.UploadedFile, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT filename, original_name, size_bytes, mime_type, checksum, created_at
		FROM uploaded_files ORDER BY created_at DESC, filename DESC`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("select entries", err)
	}
	defer rows.Close()

	result := []*models.UploadedFile{}
	for rows.Next() {
		f := &models.UploadedFile{}
		if err := rows.Scan(&f.Filename, &f.OriginalName, &f.Size, &f.MimeType, &f.Checksum, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate entries", err)
	}
	return result, nil
}

func (c *SQLCatalog) Delete(ctx context.Context, filename string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := c.db.ExecContext(ctx, `DELETE FROM uploaded_files WHERE filename = $1`, filename)
	if err != nil {
		return classify("delete entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *SQLCatalog) Close() error {
	return c.db.Close()
}

// classify marks connection-level failures with ErrStorageUnavailable so the
// caller can decide to keep going without the catalog.
func classify(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.As(err, &netErr):
		return true
	}
	return false
}

type gooseLogger struct {
	ctx context.Context
	log logging.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Debug(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}
