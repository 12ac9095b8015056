package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/outfit-tools-mcp/internal/imaging"
	"github.com/ironsheep/outfit-tools-mcp/internal/monitoring"
)

// ErrNotFound is returned by Get when no run matches the reference.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit is used by List when limit is not positive.
const DefaultListLimit = 20

// Run is the index entry of a saved result.
type Run struct {
	RunID           string `json:"run_id"`
	Tool            string `json:"tool"`
	ImageSource     string `json:"image_source"`
	NumPersons      int    `json:"num_persons"`
	TotalDetections int    `json:"total_detections"`
	ResultFile      string `json:"result_file"`
	AnnotatedFile   string `json:"annotated_file,omitempty"`
	CreatedAtNs     int64  `json:"created_at_ns"`
}

// Store saves result JSON and annotated PNG files under a results directory
// and indexes them in SQLite.
type Store struct {
	db  *sql.DB
	dir string
}

// Open creates dir if needed, opens the SQLite database at dbPath and
// migrates it to the latest schema.
func Open(dir, dbPath string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	if d := filepath.Dir(dbPath); d != "" {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, dir: dir}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the results directory.
func (s *Store) Dir() string {
	return s.dir
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (uint, error) {
	return schemaVersion(s.db)
}

// Assign fills in RunID and CreatedAtNs when empty and derives the result
// file names from them. AnnotatedFile is set only when withImage is true.
// Calling Assign again on the same run yields the same names, so callers can
// learn the file names before Save.
func (s *Store) Assign(run *Run, withImage bool) {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = time.Now().UnixNano()
	}

	short := run.RunID
	if len(short) > 8 {
		short = short[:8]
	}
	base := fmt.Sprintf("%s_%s_%s",
		run.Tool,
		time.Unix(0, run.CreatedAtNs).UTC().Format("20060102_150405"),
		short,
	)
	run.ResultFile = base + ".json"
	run.AnnotatedFile = ""
	if withImage {
		run.AnnotatedFile = base + ".png"
	}
}

// Save writes payload as indented JSON and, when annotated is non-nil, the
// annotated image as PNG, then indexes the run.
//
// File names are assigned as by Assign. If any step fails, files already
// written for the run are removed.
func (s *Store) Save(run *Run, payload any, annotated image.Image) (err error) {
	s.Assign(run, annotated != nil)

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	var written []string
	defer func() {
		if err != nil {
			for _, p := range written {
				if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					monitoring.Logf("store: remove %s: %v", p, rmErr)
				}
			}
		}
	}()

	resultPath := filepath.Join(s.dir, run.ResultFile)
	if _, statErr := os.Stat(resultPath); statErr == nil {
		return fmt.Errorf("result %s already exists", run.ResultFile)
	}
	written = append(written, resultPath)
	if err = os.WriteFile(resultPath, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	if annotated != nil {
		imagePath := filepath.Join(s.dir, run.AnnotatedFile)
		written = append(written, imagePath)
		if err = imaging.SavePNG(imagePath, annotated); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (
			run_id, tool, image_source, num_persons, total_detections,
			result_file, annotated_file, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.Tool,
		run.ImageSource,
		run.NumPersons,
		run.TotalDetections,
		run.ResultFile,
		nullString(run.AnnotatedFile),
		run.CreatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `run_id, tool, image_source, num_persons, total_detections,
	result_file, annotated_file, created_at_ns`

// List returns up to limit runs, newest first.
func (s *Store) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs
		ORDER BY created_at_ns DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Count returns the number of saved runs.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// Get looks a run up by run ID, result file name or annotated image file name
// and returns its index entry together with the stored JSON.
func (s *Store) Get(ref string) (*Run, json.RawMessage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || filepath.Base(ref) != ref {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}

	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs
		WHERE run_id = ? OR result_file = ? OR annotated_file = ?`, ref, ref, ref)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, run.ResultFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read result %s: %w", run.ResultFile, err)
	}
	return run, json.RawMessage(data), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var annotated sql.NullString
	err := sc.Scan(
		&run.RunID,
		&run.Tool,
		&run.ImageSource,
		&run.NumPersons,
		&run.TotalDetections,
		&run.ResultFile,
		&annotated,
		&run.CreatedAtNs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.AnnotatedFile = annotated.String
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
