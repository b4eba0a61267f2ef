package batch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/service"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]error
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	gate     chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, filename string, r io.Reader) (*model.Analysis, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.gate != nil {
		<-f.gate
	}

	name := filepath.Base(filename)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if err := f.fail[name]; err != nil {
		return nil, err
	}
	data, _ := io.ReadAll(r)
	return &model.Analysis{Filename: name, FullText: string(data)}, nil
}

func writePDF(t *testing.T, dir, name string, size int) string {
	t.Helper()
	body := "%PDF-" + strings.Repeat("x", size-5)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunSortsBySize(t *testing.T) {
	dir := t.TempDir()
	big := writePDF(t, dir, "big.pdf", 300)
	small := writePDF(t, dir, "small.pdf", 10)
	mid := writePDF(t, dir, "mid.pdf", 100)

	fa := &fakeAnalyzer{}
	res := NewRunner(fa).Run(context.Background(), []string{big, small, mid})

	require.Len(t, res.Analyzed, 3)
	assert.Equal(t, small, res.Analyzed[0].Path)
	assert.Equal(t, mid, res.Analyzed[1].Path)
	assert.Equal(t, big, res.Analyzed[2].Path)
	assert.Equal(t, int64(10), res.Analyzed[0].Analysis.FileSize)

	for _, it := range res.Items {
		assert.Equal(t, StateSuccess, it.State)
		assert.Equal(t, 100, it.Progress)
	}
	assert.Empty(t, res.Failed())
}

func TestRunSkipsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "contract.pdf", 20)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "other"), 0o755))
	b := writePDF(t, filepath.Join(dir, "other"), "contract.pdf", 40)

	fa := &fakeAnalyzer{}
	res := NewRunner(fa).Run(context.Background(), []string{a, b})

	require.Len(t, res.Items, 1)
	assert.Equal(t, []string{b}, res.Skipped)
	assert.Equal(t, []string{"contract.pdf"}, fa.calls)
}

func TestRunPreflightFailures(t *testing.T) {
	dir := t.TempDir()
	good := writePDF(t, dir, "good.pdf", 20)
	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	notPDF := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notPDF, []byte("hello"), 0o644))
	big := writePDF(t, dir, "big.pdf", 2048)

	fa := &fakeAnalyzer{}
	res := NewRunner(fa, WithMaxUpload(1024)).Run(context.Background(), []string{good, empty, notPDF, big})

	assert.Equal(t, []string{"good.pdf"}, fa.calls, "invalid files never reach the service")
	failed := res.Failed()
	require.Len(t, failed, 3)
	for _, it := range failed {
		var vErr *service.ValidationError
		assert.True(t, errors.As(it.Err, &vErr), "%s: %v", it.Name, it.Err)
	}
	require.Len(t, res.Analyzed, 1)
}

func TestRunServiceErrorIsNotRetried(t *testing.T) {
	dir := t.TempDir()
	ok := writePDF(t, dir, "ok.pdf", 20)
	bad := writePDF(t, dir, "bad.pdf", 20)

	fa := &fakeAnalyzer{fail: map[string]error{
		"bad.pdf": &service.Error{Status: 400, Message: "Empty file provided"},
	}}
	res := NewRunner(fa).Run(context.Background(), []string{ok, bad})

	assert.Len(t, fa.calls, 2)
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "bad.pdf", failed[0].Name)
	assert.Equal(t, 0, failed[0].Progress)
	assert.ErrorContains(t, failed[0].Err, "Empty file provided")
	require.Len(t, res.Analyzed, 1)
}

func TestRunProgressTransitions(t *testing.T) {
	dir := t.TempDir()
	p := writePDF(t, dir, "a.pdf", 20)

	var states []State
	res := NewRunner(&fakeAnalyzer{}, WithProgress(func(it Item) {
		states = append(states, it.State)
	})).Run(context.Background(), []string{p})

	assert.Equal(t, []State{StateUploading, StateAnalyzing, StateSuccess}, states)
	assert.True(t, res.Items[0].State.Done())
}

func TestRunBoundsConcurrency(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"} {
		paths = append(paths, writePDF(t, dir, name, 20))
	}

	fa := &fakeAnalyzer{gate: make(chan struct{})}
	done := make(chan *Result)
	go func() {
		done <- NewRunner(fa, WithWorkers(2)).Run(context.Background(), paths)
	}()
	for range paths {
		fa.gate <- struct{}{}
	}
	res := <-done

	assert.LessOrEqual(t, fa.maxSeen.Load(), int32(2))
	assert.Len(t, res.Analyzed, 5)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "analyzing", StateAnalyzing.String())
	assert.False(t, StateUploading.Done())
	assert.True(t, StateError.Done())
}
