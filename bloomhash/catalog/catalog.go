package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/bloomhash/bloomhash"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/table"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/validator"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// ErrNotFound is returned when a build or validation record does not exist.
var ErrNotFound = errors.New("catalog record not found")

// Fixed-width UTC timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// BuildRecord describes one table produced by a TableBuilder.
type BuildRecord struct {
	ID        uuid.UUID
	Metadata  table.Metadata
	FillRatio float64
	BuiltAt   time.Time
}

// ValidationRecord is the stored outcome of one TableValidator run.
type ValidationRecord struct {
	ID           uuid.UUID
	BuildID      uuid.UUID
	Valid        bool
	OriginalOK   bool
	Samples      int
	Positives    int
	PositiveRate float64
	FillRatio    float64
	CheckedAt    time.Time
}

// Catalog keeps a history of table builds and their validation results.
type Catalog struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// ConnectToDB opens a libsql connection. A bare path is treated as a local
// file and its directory is created if needed.
func ConnectToDB(dsn string) (*sql.DB, error) {
	if !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, "://") {
		dsn = "file:" + dsn
	}
	if path, ok := strings.CutPrefix(dsn, "file:"); ok {
		path, _, _ = strings.Cut(path, "?")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("could not create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	if strings.HasPrefix(dsn, "file:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}
	return db, nil
}

// Open connects to the catalog at dsn and creates its tables.
func Open(dsn string, opts ...Option) (*Catalog, error) {
	c := &Catalog{logger: internal.GetLogger()}
	for _, opt := range opts {
		opt(c)
	}

	db, err := ConnectToDB(dsn)
	if err != nil {
		return nil, err
	}
	c.db = db
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}

	c.logger.Debug().Str("dsn", dsn).Msg("Opened catalog")
	return c, nil
}

func (c *Catalog) init() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY UNIQUE,
		wordlist_path TEXT NOT NULL,
		table_path TEXT NOT NULL,
		method TEXT NOT NULL,
		size INTEGER NOT NULL,
		fill_ratio REAL,
		built_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create builds table: %w", err)
	}

	_, err = c.db.Exec(`CREATE TABLE IF NOT EXISTS validations (
		id TEXT PRIMARY KEY UNIQUE,
		build_id TEXT NOT NULL REFERENCES builds(id),
		valid INTEGER NOT NULL,
		original_ok INTEGER NOT NULL,
		samples INTEGER,
		positives INTEGER,
		positive_rate REAL,
		fill_ratio REAL,
		checked_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create validations table: %w", err)
	}

	return nil
}

// RecordBuild stores a freshly built table and returns its record.
func (c *Catalog) RecordBuild(meta table.Metadata, fillRatio float64) (*BuildRecord, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec := BuildRecord{
		ID:        uuid.New(),
		Metadata:  meta,
		FillRatio: fillRatio,
		BuiltAt:   time.Now().UTC(),
	}

	result, err := tx.Exec(`INSERT INTO builds
		(id, wordlist_path, table_path, method, size, fill_ratio, built_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), meta.WordlistPath, meta.TablePath, meta.MethodName,
		int64(meta.Size), fillRatio, rec.BuiltAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert build: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.logger.Debug().
		Str("id", rec.ID.String()).
		Str("table", meta.TablePath).
		Str("method", meta.MethodName).
		Msg("Recorded build")
	return &rec, nil
}

// RecordValidation stores a validation report against an existing build.
func (c *Catalog) RecordValidation(buildID uuid.UUID, report validator.Report) (*ValidationRecord, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec := ValidationRecord{
		ID:           uuid.New(),
		BuildID:      buildID,
		Valid:        report.Valid,
		OriginalOK:   report.OriginalOK,
		Samples:      report.Samples,
		Positives:    report.Positives,
		PositiveRate: report.PositiveRate,
		FillRatio:    report.FillRatio,
		CheckedAt:    time.Now().UTC(),
	}

	result, err := tx.Exec(`INSERT INTO validations
		(id, build_id, valid, original_ok, samples, positives, positive_rate, fill_ratio, checked_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM builds WHERE id = ?)`,
		rec.ID.String(), buildID.String(), boolInt(rec.Valid), boolInt(rec.OriginalOK),
		rec.Samples, rec.Positives, rec.PositiveRate, rec.FillRatio,
		rec.CheckedAt.Format(timeLayout), buildID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to insert validation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("build %s: %w", buildID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &rec, nil
}

const buildColumns = `id, wordlist_path, table_path, method, size, fill_ratio, built_at`

// GetBuild returns the build with the given id.
func (c *Catalog) GetBuild(id uuid.UUID) (*BuildRecord, error) {
	row := c.db.QueryRow(`SELECT `+buildColumns+` FROM builds WHERE id = ?`, id.String())
	rec, err := scanBuild(row)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", id, err)
	}
	return rec, nil
}

// LatestBuildFor returns the most recent build of the table at tablePath.
func (c *Catalog) LatestBuildFor(tablePath string) (*BuildRecord, error) {
	row := c.db.QueryRow(`SELECT `+buildColumns+` FROM builds
		WHERE table_path = ? ORDER BY built_at DESC, rowid DESC LIMIT 1`, tablePath)
	rec, err := scanBuild(row)
	if err != nil {
		return nil, fmt.Errorf("build of %s: %w", tablePath, err)
	}
	return rec, nil
}

// ListBuilds returns every build, newest first.
func (c *Catalog) ListBuilds() ([]BuildRecord, error) {
	rows, err := c.db.Query(`SELECT ` + buildColumns + ` FROM builds ORDER BY built_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var builds []BuildRecord
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *rec)
	}
	return builds, rows.Err()
}

// LatestValidation returns the newest validation of a build.
func (c *Catalog) LatestValidation(buildID uuid.UUID) (*ValidationRecord, error) {
	var (
		rec                ValidationRecord
		id, build, checked string
		valid, originalOK  int
	)
	err := c.db.QueryRow(`SELECT id, build_id, valid, original_ok, samples, positives,
		positive_rate, fill_ratio, checked_at
		FROM validations WHERE build_id = ? ORDER BY checked_at DESC, rowid DESC LIMIT 1`,
		buildID.String()).
		Scan(&id, &build, &valid, &originalOK, &rec.Samples, &rec.Positives,
			&rec.PositiveRate, &rec.FillRatio, &checked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("validation of %s: %w", buildID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read validation: %w", err)
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if rec.BuildID, err = uuid.Parse(build); err != nil {
		return nil, err
	}
	if rec.CheckedAt, err = time.Parse(timeLayout, checked); err != nil {
		return nil, err
	}
	rec.Valid = valid != 0
	rec.OriginalOK = originalOK != 0
	return &rec, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(s scanner) (*BuildRecord, error) {
	var (
		rec         BuildRecord
		id, builtAt string
		size        int64
	)
	err := s.Scan(&id, &rec.Metadata.WordlistPath, &rec.Metadata.TablePath,
		&rec.Metadata.MethodName, &size, &rec.FillRatio, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read build: %w", err)
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if rec.BuiltAt, err = time.Parse(timeLayout, builtAt); err != nil {
		return nil, err
	}
	rec.Metadata.Size = uint64(size)
	return &rec, nil
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("expected 1 row affected, got %d", rows)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
