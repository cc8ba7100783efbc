package results

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// FileSink writes results as indented JSON. When Path names a directory, or
// ends in a separator, each run gets its own <run_id>.json inside it;
// otherwise the single file at Path is replaced on every save.
type FileSink struct {
	Path string

	mu     sync.Mutex
	logger *zap.Logger
}

var _ Sink = (*FileSink)(nil)

func NewFileSink(path string, logger *zap.Logger) *FileSink {
	return &FileSink{Path: path, logger: logger.Named("results.file")}
}

// Target returns the file a result will be written to.
func (s *FileSink) Target(result *schemas.TaskResult) string {
	if strings.HasSuffix(s.Path, "/") || strings.HasSuffix(s.Path, string(os.PathSeparator)) {
		return filepath.Join(s.Path, result.RunID+".json")
	}
	if info, err := os.Stat(s.Path); err == nil && info.IsDir() {
		return filepath.Join(s.Path, result.RunID+".json")
	}
	return s.Path
}

func (s *FileSink) Save(ctx context.Context, result *schemas.TaskResult) error {
	if result == nil {
		return fmt.Errorf("cannot save a nil result")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.Target(result)
	if err := writeFileAtomic(target, data); err != nil {
		return err
	}
	s.logger.Info("Saved task result.", zap.String("path", target), zap.String("run_id", result.RunID))
	return nil
}

func (s *FileSink) Close() error { return nil }

// writeFileAtomic writes through a temp file in the same directory so readers
// never observe a partial result.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".task_result-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write task result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write task result: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set result file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move task result into place: %w", err)
	}
	return nil
}

// Load reads a result written by FileSink.
func Load(path string) (*schemas.TaskResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var result schemas.TaskResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode task result %s: %w", path, err)
	}
	return &result, nil
}
