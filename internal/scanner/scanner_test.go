package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sarg-check/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFileWalker_Walk(t *testing.T) {
	rootDir := t.TempDir()

	files := []string{
		"main.go",
		"main.py",
		"queries.sql",
		"ignored.txt",
		"main_test.go",
		"sub/sub.go",
		"sub/ignore_dir/file.go",
		"vendor/vendor.go",
		".git/hooks.go",
	}
	for _, f := range files {
		path := filepath.Join(rootDir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))
	}

	tests := []struct {
		name     string
		exts     []string
		excludes []string
		want     []string
	}{
		{
			name:     "Find Go files",
			exts:     []string{"go"},
			excludes: []string{"vendor", "ignore_dir", "*_test.go"},
			want:     []string{"main.go", "sub/sub.go"},
		},
		{
			name:     "Find Go, Py and SQL files",
			exts:     []string{"go", ".py", "SQL"},
			excludes: []string{"vendor", "ignore_dir", "*_test.go"},
			want:     []string{"main.go", "main.py", "queries.sql", "sub/sub.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			walker := NewFileWalker(tt.exts, tt.excludes, nil)
			paths, errs := walker.Walk(context.Background(), rootDir)

			var got []string
			for p := range paths {
				rel, err := filepath.Rel(rootDir, p)
				require.NoError(t, err)
				got = append(got, filepath.ToSlash(rel))
			}
			for err := range errs {
				require.NoError(t, err)
			}

			sort.Strings(got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileWalker_MissingRoot(t *testing.T) {
	walker := NewFileWalker([]string{"go"}, nil, nil)
	paths, errs := walker.Walk(context.Background(), filepath.Join(t.TempDir(), "missing"))
	for range paths {
		t.Fatal("no paths expected")
	}
	assert.Error(t, <-errs)
}

func TestFileWalker_Cancel(t *testing.T) {
	rootDir := t.TempDir()
	for i := 0; i < 300; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(rootDir, fmt.Sprintf("f%03d.go", i)), nil, 0o644))
	}

	ctx, cancel := context.WithCancel(context.Background())
	paths, errs := NewFileWalker([]string{"go"}, nil, nil).Walk(ctx, rootDir)
	<-paths
	cancel()
	for range paths {
	}
	err := <-errs
	assert.True(t, err == nil || errors.Is(err, context.Canceled))
}

func TestWorkerPool_Start(t *testing.T) {
	proc := func(path string) ([]model.SegmentReport, error) {
		if path == "bad" {
			return nil, errors.New("boom")
		}
		return []model.SegmentReport{{Segment: model.SQLSegment{SQL: "SELECT 1", Location: model.Location{FilePath: path}}}}, nil
	}

	pool := NewWorkerPool(2, proc)
	paths := make(chan string, 5)
	for _, p := range []string{"e", "bad", "a", "c", "b"} {
		paths <- p
	}
	close(paths)

	results := Collect(pool.Start(context.Background(), paths))
	require.Len(t, results, 5)

	var files []string
	for _, res := range results {
		files = append(files, res.File)
		if res.File == "bad" {
			assert.Error(t, res.Error)
			continue
		}
		require.NoError(t, res.Error)
		assert.Len(t, res.Reports, 1)
	}
	assert.Equal(t, []string{"a", "b", "bad", "c", "e"}, files)
}

func TestWorkerPool_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	paths := make(chan string)
	results := NewWorkerPool(3, func(string) ([]model.SegmentReport, error) { return nil, nil }).Start(ctx, paths)

	paths <- "one"
	cancel()
	close(paths)
	for range results {
	}
}

func TestNewWorkerPool_MinimumConcurrency(t *testing.T) {
	assert.Equal(t, 1, NewWorkerPool(0, nil).Concurrency)
}
