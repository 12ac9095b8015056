package store

import (
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "results"), filepath.Join(dir, "db", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type payload struct {
	Status     string `json:"status"`
	NumPersons int    `json:"num_persons"`
}

func TestOpen_MigratesSchema(t *testing.T) {
	s := openTestStore(t)

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")

	s, err := Open(dir, dbPath)
	require.NoError(t, err)
	run := &Run{Tool: "detect", ImageSource: "a.jpg"}
	require.NoError(t, s.Save(run, payload{Status: "success"}, nil))
	require.NoError(t, s.Close())

	s, err = Open(dir, dbPath)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)
}

func TestSave_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})

	run := &Run{Tool: "detect", ImageSource: "https://example.com/look.jpg", NumPersons: 2, TotalDetections: 5}
	require.NoError(t, s.Save(run, payload{Status: "success", NumPersons: 2}, img))

	assert.NotEmpty(t, run.RunID)
	assert.NotZero(t, run.CreatedAtNs)
	assert.Regexp(t, `^detect_\d{8}_\d{6}_[0-9a-f]{8}\.json$`, run.ResultFile)
	assert.FileExists(t, filepath.Join(s.Dir(), run.ResultFile))
	assert.FileExists(t, filepath.Join(s.Dir(), run.AnnotatedFile))

	for _, ref := range []string{run.RunID, run.ResultFile, run.AnnotatedFile} {
		got, data, err := s.Get(ref)
		require.NoError(t, err, ref)
		assert.Equal(t, *run, *got)

		var p payload
		require.NoError(t, json.Unmarshal(data, &p))
		assert.Equal(t, payload{Status: "success", NumPersons: 2}, p)
	}
}

func TestSave_WithoutImage(t *testing.T) {
	s := openTestStore(t)

	run := &Run{RunID: "abc", Tool: "segment", ImageSource: "x.png", CreatedAtNs: 1}
	require.NoError(t, s.Save(run, map[string]any{"status": "success"}, nil))

	assert.Equal(t, "segment_19700101_000000_abc.json", run.ResultFile)
	assert.Empty(t, run.AnnotatedFile)

	got, _, err := s.Get("abc")
	require.NoError(t, err)
	assert.Empty(t, got.AnnotatedFile)
}

func TestAssign_MatchesSave(t *testing.T) {
	s := openTestStore(t)

	run := &Run{Tool: "detection", ImageSource: "look.jpg"}
	s.Assign(run, true)
	assigned := *run

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	require.NoError(t, s.Save(run, payload{Status: "completed"}, img))

	assert.Equal(t, assigned, *run)
	assert.FileExists(t, filepath.Join(s.Dir(), assigned.ResultFile))
	assert.FileExists(t, filepath.Join(s.Dir(), assigned.AnnotatedFile))
}

func TestSave_FailedInsertRemovesFiles(t *testing.T) {
	s := openTestStore(t)

	first := &Run{RunID: "dup", Tool: "detection", CreatedAtNs: 1}
	require.NoError(t, s.Save(first, payload{Status: "completed"}, nil))

	// Same run ID a few seconds later: new file names, primary key conflict.
	second := &Run{RunID: "dup", Tool: "detection", CreatedAtNs: 5_000_000_000}
	err := s.Save(second, payload{Status: "completed"}, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.Error(t, err)

	assert.NoFileExists(t, filepath.Join(s.Dir(), second.ResultFile))
	assert.NoFileExists(t, filepath.Join(s.Dir(), second.AnnotatedFile))
	assert.FileExists(t, filepath.Join(s.Dir(), first.ResultFile))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSave_DoesNotOverwriteExistingResult(t *testing.T) {
	s := openTestStore(t)

	first := &Run{RunID: "same", Tool: "detection", CreatedAtNs: 1}
	require.NoError(t, s.Save(first, payload{Status: "completed", NumPersons: 1}, nil))

	again := &Run{RunID: "same", Tool: "detection", CreatedAtNs: 1}
	require.Error(t, s.Save(again, payload{Status: "completed", NumPersons: 9}, nil))

	_, data, err := s.Get("same")
	require.NoError(t, err)
	var p payload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, 1, p.NumPersons)
}

func TestList_NewestFirst(t *testing.T) {
	s := openTestStore(t)

	for i, id := range []string{"first", "second", "third"} {
		run := &Run{RunID: id, Tool: "detect", CreatedAtNs: int64(i+1) * 1e9}
		require.NoError(t, s.Save(run, payload{}, nil))
	}

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "third", runs[0].RunID)
	assert.Equal(t, "first", runs[2].RunID)

	runs, err = s.List(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestList_Empty(t *testing.T) {
	s := openTestStore(t)

	runs, err := s.List(10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	for _, ref := range []string{"missing", "", "../runs.db", "a/b.json"} {
		_, _, err := s.Get(ref)
		assert.True(t, errors.Is(err, ErrNotFound), "ref %q: %v", ref, err)
	}
}

func TestGet_MissingFile(t *testing.T) {
	s := openTestStore(t)

	run := &Run{Tool: "detect"}
	require.NoError(t, s.Save(run, payload{}, nil))
	require.NoError(t, os.Remove(filepath.Join(s.Dir(), run.ResultFile)))

	_, _, err := s.Get(run.RunID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
