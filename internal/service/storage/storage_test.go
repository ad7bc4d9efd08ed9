package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"videocounter/internal/config"
	"videocounter/internal/logger"
	"videocounter/internal/model"
	"videocounter/internal/repository/sqlite"
)

// ==========================================
// VideoStore
// ==========================================

func newTestStore(t *testing.T, maxMB int64) *VideoStore {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		UploadDirectory: filepath.Join(dir, "uploads"),
		OutputDirectory: filepath.Join(dir, "outputs"),
		MaxUploadMB:     maxMB,
	}
	store, err := NewVideoStore(cfg, logger.NewNop())
	require.NoError(t, err)
	return store
}

func TestSaveUpload(t *testing.T) {
	store := newTestStore(t, 1)

	path, n, err := store.SaveUpload("job1", "traffic cam.mp4", strings.NewReader("fake video"))
	require.NoError(t, err)
	require.Equal(t, int64(10), n)
	require.Equal(t, "job1_traffic_cam.mp4", filepath.Base(path))
	require.True(t, Exists(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "fake video", string(data))
}

func TestSaveUpload_ZeroLimitAcceptsNothing(t *testing.T) {
	store := newTestStore(t, 0)

	_, _, err := store.SaveUpload("job3", "tiny.mp4", strings.NewReader("x"))
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSaveUpload_TooLarge(t *testing.T) {
	store := newTestStore(t, 1)

	big := bytes.Repeat([]byte{'x'}, 1<<20+1)
	_, _, err := store.SaveUpload("job2", "big.mp4", bytes.NewReader(big))
	require.ErrorIs(t, err, model.ErrInvalidInput)

	entries, err := os.ReadDir(store.uploadDir)
	require.NoError(t, err)
	require.Empty(t, entries, "rejected upload must not stay on disk")
}

func TestOutputPathAndRemove(t *testing.T) {
	store := newTestStore(t, 1)
	out := store.OutputPath("abc")
	require.Equal(t, "abc_output.mp4", filepath.Base(out))

	require.NoError(t, os.WriteFile(out, []byte("x"), 0644))
	require.NoError(t, store.Remove(out, filepath.Join(store.outputDir, "missing.mp4"), ""))
	require.False(t, Exists(out))
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"video.mp4":            "video.mp4",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\clip.mov`: "clip.mov",
		"my clip (1).mp4":      "my_clip__1_.mp4",
		".hidden":              "hidden",
		"":                     "upload",
		"..":                   "upload",
	}
	for in, want := range cases {
		require.Equal(t, want, SafeFilename(in), "input %q", in)
	}
}

// ==========================================
// SeriesBuffer
// ==========================================

func newTestSeries(t *testing.T, flushSize int) (*SeriesBuffer, *sqlite.FrameRepository) {
	t.Helper()
	db, err := sqlite.New(sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := sqlite.NewFrameRepository(db)
	cfg := &config.Config{SeriesFlushSize: flushSize, SeriesFlushInterval: time.Hour}
	return NewSeriesBuffer(cfg, logger.NewNop(), repo), repo
}

func personFrame(i, n int) model.FrameCount {
	return model.FrameCount{FrameIndex: i, PerClass: map[string]int{"person": n}, Total: n}
}

func TestSeriesBuffer_FlushesWhenFull(t *testing.T) {
	series, repo := newTestSeries(t, 3)

	series.Add("job", personFrame(0, 1))
	series.Add("job", personFrame(1, 2))
	n, err := repo.CountFrames("job")
	require.NoError(t, err)
	require.Zero(t, n, "below the flush size nothing is written")

	series.Add("job", personFrame(2, 0))
	n, err = repo.CountFrames("job")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestSeriesBuffer_SeriesIncludesPending(t *testing.T) {
	series, _ := newTestSeries(t, 100)
	for i := 0; i < 5; i++ {
		series.Add("job", personFrame(i, i))
	}

	counts, err := series.Series("job")
	require.NoError(t, err)
	require.Len(t, counts, 5)
	require.Equal(t, 4, counts[4].Total)
}

func TestSeriesBuffer_Drop(t *testing.T) {
	series, repo := newTestSeries(t, 2)
	series.Add("job", personFrame(0, 1))
	series.Add("job", personFrame(1, 1))
	series.Add("job", personFrame(2, 1))

	require.NoError(t, series.Drop("job"))
	series.FlushAll()

	n, err := repo.CountFrames("job")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSeriesBuffer_RunFlushesOnShutdown(t *testing.T) {
	series, repo := newTestSeries(t, 100)
	series.Add("job", personFrame(0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		series.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	n, err := repo.CountFrames("job")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSeriesBuffer_Stored(t *testing.T) {
	series, _ := newTestSeries(t, 100)
	series.Add("job", personFrame(0, 1))
	series.Add("job", personFrame(1, 3))

	stored, err := series.Stored("job")
	require.NoError(t, err)
	require.Equal(t, 2, stored.Frames)
	require.Equal(t, map[string]int{"person": 4}, stored.Totals)

	empty, err := series.Stored("other")
	require.NoError(t, err)
	require.Zero(t, empty.Frames)
	require.Empty(t, empty.Totals)
}

// blockingRepo holds the first InsertBatch until release is closed and records
// the frame indexes of every batch in insert order.
type blockingRepo struct {
	sqlite.FrameRepository
	entered chan struct{}
	release chan struct{}

	mu      sync.Mutex
	calls   int
	batches [][]int
}

func (r *blockingRepo) InsertBatch(jobID string, counts []model.FrameCount) error {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first {
		close(r.entered)
		<-r.release
	}

	indexes := make([]int, len(counts))
	for i, fc := range counts {
		indexes[i] = fc.FrameIndex
	}
	r.mu.Lock()
	r.batches = append(r.batches, indexes)
	r.mu.Unlock()
	return nil
}

func (r *blockingRepo) Batches() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int(nil), r.batches...)
}

func TestSeriesBuffer_FlushWaitsForInflightInsert(t *testing.T) {
	repo := &blockingRepo{entered: make(chan struct{}), release: make(chan struct{})}
	cfg := &config.Config{SeriesFlushSize: 100, SeriesFlushInterval: time.Hour}
	series := NewSeriesBuffer(cfg, logger.NewNop(), repo)

	series.Add("job", personFrame(0, 1))
	series.Add("job", personFrame(1, 1))
	go series.FlushAll()
	<-repo.entered

	// the periodic flush holds frames 0 and 1; the final flush must not return first
	series.Add("job", personFrame(2, 1))
	flushed := make(chan error, 1)
	go func() { flushed <- series.Flush("job") }()
	require.Never(t, func() bool { return len(flushed) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(repo.release)
	require.NoError(t, <-flushed)
	require.Equal(t, [][]int{{0, 1}, {2}}, repo.Batches())
}
