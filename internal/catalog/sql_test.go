package catalog

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"regexp"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"vidshare/internal/models"
)

func newCatalogWithMock(t *testing.T) (*SQLCatalog, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewSQLCatalog(db, "postgres"), mock, db
}

const insertQ = `(?s)^\s*INSERT\s+INTO\s+uploaded_files\b.*ON\s+CONFLICT\s*\(filename\)\s*DO\s+NOTHING$`

func sampleEntry() *models.UploadedFile {
	return &models.UploadedFile{
		Filename:     "1700000000123_clip.mp4",
		OriginalName: "clip.mp4",
		Size:         20 << 20,
		MimeType:     "video/mp4",
		Checksum:     "abc",
		CreatedAt:    time.UnixMilli(1700000000123),
	}
}

func TestSQLCreate_Success(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WithArgs("1700000000123_clip.mp4", "clip.mp4", int64(20<<20), "video/mp4", "abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, c.Create(context.Background(), sampleEntry()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCreate_Duplicate(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnResult(sqlmock.NewResult(0, 0))

	err := c.Create(context.Background(), sampleEntry())
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestSQLCreate_DBError(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnError(errors.New("syntax error"))

	err := c.Create(context.Background(), sampleEntry())
	require.Error(t, err)
	require.Regexp(t, regexp.MustCompile(`insert entry: .*syntax error`), err.Error())
	require.NotErrorIs(t, err, ErrStorageUnavailable)
}

func TestSQLCreate_ConnectionRefusedIsUnavailable(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})

	err := c.Create(context.Background(), sampleEntry())
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestSQLCreate_UnexpectedRowsAffected(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).WillReturnResult(sqlmock.NewResult(0, 2))

	err := c.Create(context.Background(), sampleEntry())
	require.EqualError(t, err, "unexpected rows affected: 2")
}

const replaceQ = `(?s)^\s*INSERT\s+INTO\s+uploaded_files\b.*ON\s+CONFLICT\s*\(filename\)\s*DO\s+UPDATE\s+SET\b.*`

func TestSQLReplace(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	mock.ExpectExec(replaceQ).
		WithArgs("1700000000123_clip.mp4", "clip.mp4", int64(20<<20), "video/mp4", "abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, c.Replace(context.Background(), sampleEntry()))

	mock.ExpectExec(replaceQ).
		WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})
	require.ErrorIs(t, c.Replace(context.Background(), sampleEntry()), ErrStorageUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLGet(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	q := `SELECT filename, original_name, size_bytes, mime_type, checksum, created_at\s+FROM uploaded_files WHERE filename = \$1`
	at := time.UnixMilli(1700000000123).UTC()
	mock.ExpectQuery(q).WithArgs("1_a.mp4").
		WillReturnRows(sqlmock.NewRows([]string{"filename", "original_name", "size_bytes", "mime_type", "checksum", "created_at"}).
			AddRow("1_a.mp4", "a.mp4", int64(42), "video/mp4", "", at))
	mock.ExpectQuery(q).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	got, err := c.Get(context.Background(), "1_a.mp4")
	require.NoError(t, err)
	require.Equal(t, "a.mp4", got.OriginalName)
	require.Equal(t, int64(42), got.Size)
	require.True(t, at.Equal(got.CreatedAt))

	_, err = c.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLList_PreservesQueryOrder(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	newer := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	mock.ExpectQuery(`ORDER BY created_at DESC, filename DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"filename", "original_name", "size_bytes", "mime_type", "checksum", "created_at"}).
			AddRow("2_b.mp4", "b.mp4", int64(2), "video/mp4", "", newer).
			AddRow("1_a.mp4", "a.mp4", int64(1), "video/mp4", "", older))

	got, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "2_b.mp4", got[0].Filename)
	require.Equal(t, "1_a.mp4", got[1].Filename)
}

func TestSQLList_EmptyIsNotNil(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM uploaded_files`).
		WillReturnRows(sqlmock.NewRows([]string{"filename", "original_name", "size_bytes", "mime_type", "checksum", "created_at"}))

	got, err := c.List(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestSQLDelete(t *testing.T) {
	c, mock, db := newCatalogWithMock(t)
	defer db.Close()

	q := `DELETE FROM uploaded_files WHERE filename = \$1`
	mock.ExpectExec(q).WithArgs("1_a.mp4").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("1_a.mp4").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, c.Delete(context.Background(), "1_a.mp4"))
	require.ErrorIs(t, c.Delete(context.Background(), "1_a.mp4"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn    string
		driver string
		source string
	}{
		{"postgres://u:p@db:5432/vids?sslmode=disable", "postgres", "postgres://u:p@db:5432/vids?sslmode=disable"},
		{"postgresql://db/vids", "postgres", "postgresql://db/vids"},
		{"host=127.0.0.1 dbname=vids sslmode=disable", "postgres", "host=127.0.0.1 dbname=vids sslmode=disable"},
		{"sqlite:///var/lib/vids.db", "sqlite3", "/var/lib/vids.db?_busy_timeout=5000"},
		{"sqlite3://vids.db?cache=shared", "sqlite3", "vids.db?cache=shared&_busy_timeout=5000"},
		{"file:vids.db?_busy_timeout=100", "sqlite3", "file:vids.db?_busy_timeout=100"},
	}
	for _, tt := range tests {
		driver, source, err := parseDSN(tt.dsn)
		require.NoError(t, err, tt.dsn)
		require.Equal(t, tt.driver, driver, tt.dsn)
		require.Equal(t, tt.source, source, tt.dsn)
	}

	_, _, err := parseDSN("mysql://root:secret@db/vids")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "secret")
}
