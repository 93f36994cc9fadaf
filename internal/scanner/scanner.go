package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"sarg-check/internal/model"
)

// FileWalker is responsible for traversing directories and feeding files to a channel
type FileWalker struct {
	Extensions map[string]struct{}
	Excludes   []string
	Logger     *slog.Logger
}

func NewFileWalker(exts []string, excludes []string, log *slog.Logger) *FileWalker {
	e := make(map[string]struct{})
	for _, ext := range exts {
		e[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &FileWalker{
		Extensions: e,
		Excludes:   excludes,
		Logger:     log,
	}
}

// Walk starts the traversal and returns a channel of file paths.
// It runs in a separate goroutine and closes both channels when done.
// Unreadable entries below root are logged and skipped.
func (fw *FileWalker) Walk(ctx context.Context, root string) (<-chan string, <-chan error) {
	paths := make(chan string, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(paths)
		defer close(errs)

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				fw.Logger.Warn("skipping unreadable path", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if d.IsDir() {
				if path == root {
					return nil
				}
				for _, exclude := range fw.Excludes {
					if strings.Contains(path, exclude) {
						return filepath.SkipDir
					}
				}
				if strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir // hidden directories like .git
				}
				return nil
			}

			// exclusions for files, e.g. *_test.go
			for _, exclude := range fw.Excludes {
				matched, _ := filepath.Match(exclude, d.Name())
				if matched || strings.Contains(path, exclude) {
					return nil
				}
			}

			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			if _, ok := fw.Extensions[ext]; ok {
				select {
				case paths <- path:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})

		if err != nil {
			errs <- err
		}
	}()

	return paths, errs
}

// ScanResult is the outcome of processing one file.
type ScanResult struct {
	File    string
	Reports []model.SegmentReport
	Error   error
}

// Processor analyzes the file at path.
type Processor func(path string) ([]model.SegmentReport, error)

// WorkerPool manages concurrent processing
type WorkerPool struct {
	Concurrency int
	Processor   Processor
}

func NewWorkerPool(concurrency int, proc Processor) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{
		Concurrency: concurrency,
		Processor:   proc,
	}
}

// Start fans paths out to the workers. The results channel is closed once
// paths is drained or ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context, paths <-chan string) <-chan ScanResult {
	results := make(chan ScanResult)
	var wg sync.WaitGroup

	for i := 0; i < wp.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				if ctx.Err() != nil {
					return
				}
				reports, err := wp.Processor(path)
				// errors are delivered as results so callers can report them
				select {
				case results <- ScanResult{File: path, Reports: reports, Error: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// Collect drains results and orders them by file so output does not depend
// on worker scheduling.
func Collect(results <-chan ScanResult) []ScanResult {
	var out []ScanResult
	for res := range results {
		out = append(out, res)
	}
	slices.SortFunc(out, func(a, b ScanResult) int {
		return strings.Compare(a.File, b.File)
	})
	return out
}
