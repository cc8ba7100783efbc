package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func writeBatch(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()

	t.Run("defaults", func(t *testing.T) {
		path := writeBatch(t, dir, `
tasks:
  - task: "  Report the first headline  "
    url: news.ycombinator.com
  - name: docs
    task: Open the documentation
`)
		batch, err := loadBatch(path)
		require.NoError(t, err)
		assert.Equal(t, 1, batch.Concurrency)
		require.Len(t, batch.Tasks, 2)
		assert.Equal(t, "task-1", batch.Tasks[0].Name)
		assert.Equal(t, "Report the first headline", batch.Tasks[0].Task)
		assert.Equal(t, "docs", batch.Tasks[1].Name)
	})

	cases := []struct {
		name string
		body string
		want string
	}{
		{"no tasks", "concurrency: 2\n", "batch file contains no tasks"},
		{"empty task text", "tasks:\n  - name: blank\n    task: ' '\n", "batch task 1 has no task text"},
		{"unknown key", "tasks:\n  - task: x\n    steps: 4\n", "field steps not found"},
		{"not yaml", "tasks: [", "failed to parse batch file"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadBatch(writeBatch(t, t.TempDir(), tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := loadBatch(filepath.Join(dir, "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open batch file")
	})
}

func TestBatchCommand(t *testing.T) {
	h := newHarness(t)
	h.llm.On("Generate", mock.Anything, mock.Anything).Return(completePlan, nil)
	path := writeBatch(t, h.dir, `
concurrency: 2
tasks:
  - name: first
    task: Report the heading
    url: example.com
  - name: second
    task: Report the footer
`)

	out, err := executeRoot(t, "", "batch", path)
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "found it")
	assert.Equal(t, 2, h.browserCount(), "each task gets its own browser")

	// Test Case: results land in a directory named after the configured file.
	entries, err := os.ReadDir(filepath.Join(h.dir, "result"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
