package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeRoot(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCommand(t *testing.T) {
	out, err := executeRoot(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "webpilot "+Version+"\n", out)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	newHarness(t)
	t.Setenv("WEBPILOT_AGENT_MAX_STEPS", "0")

	_, err := executeRoot(t, "", "run", "--task", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.max_steps must be a positive integer")
}

func TestRootCmd_ConfigFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser:\n  engine: netscape\n"), 0o644))

	_, err := executeRoot(t, "", "--config", path, "run", "--task", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `browser.engine "netscape"`)
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	newHarness(t)
	_, err := executeRoot(t, "", "--config", "/nonexistent/webpilot.yaml", "run", "--task", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"example.com":          "https://example.com",
		"localhost:8080/login": "https://localhost:8080/login",
		"http://example.com":   "http://example.com",
		"about:blank":          "about:blank",
		"file:///tmp/x.html":   "file:///tmp/x.html",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeURL(in), "input %q", in)
	}
}
