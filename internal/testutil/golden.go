package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GoldenHelper compares generated output against golden files stored in
// a testdata directory. Running tests with UPDATE_GOLDEN=true rewrites
// the golden files from the actual output instead of comparing.
type GoldenHelper struct {
	t          *testing.T
	goldenDir  string
	updateMode bool
}

// NewGoldenHelper creates a helper rooted at goldenDir.
func NewGoldenHelper(t *testing.T, goldenDir string) *GoldenHelper {
	t.Helper()

	return &GoldenHelper{
		t:          t,
		goldenDir:  goldenDir,
		updateMode: os.Getenv("UPDATE_GOLDEN") == "true",
	}
}

// GoldenPath returns the full path of a golden file.
func (g *GoldenHelper) GoldenPath(name string) string {
	return filepath.Join(g.goldenDir, name)
}

// IsUpdateMode reports whether golden files are being rewritten.
func (g *GoldenHelper) IsUpdateMode() bool {
	return g.updateMode
}

// Exists reports whether the named golden file is present.
func (g *GoldenHelper) Exists(name string) bool {
	_, err := os.Stat(g.GoldenPath(name))
	return err == nil
}

// AssertGolden compares actual byte for byte with the named golden file.
func (g *GoldenHelper) AssertGolden(name string, actual []byte) {
	g.t.Helper()

	if g.update(name, actual) {
		return
	}

	golden, err := os.ReadFile(g.GoldenPath(name))
	require.NoError(g.t, err, "failed to read golden file %s", name)

	assert.Equal(g.t, string(golden), string(actual),
		"content does not match golden file %s", name)
}

// AssertGoldenString is AssertGolden for string content.
func (g *GoldenHelper) AssertGoldenString(name, actual string) {
	g.t.Helper()
	g.AssertGolden(name, []byte(actual))
}

// AssertGoldenJSON compares actual with the named golden file as JSON,
// so formatting and key-order differences do not fail the test.
func (g *GoldenHelper) AssertGoldenJSON(name string, actual []byte) {
	g.t.Helper()

	if g.update(name, actual) {
		return
	}

	golden, err := os.ReadFile(g.GoldenPath(name))
	require.NoError(g.t, err, "failed to read golden file %s", name)

	assert.JSONEq(g.t, string(golden), string(actual),
		"JSON content does not match golden file %s", name)
}

// update rewrites the golden file in update mode and reports whether it
// did so.
func (g *GoldenHelper) update(name string, actual []byte) bool {
	if !g.updateMode {
		return false
	}

	path := g.GoldenPath(name)
	require.NoError(g.t, os.MkdirAll(filepath.Dir(path), 0o755),
		"failed to create golden file directory")
	require.NoError(g.t, os.WriteFile(path, actual, 0o644),
		"failed to update golden file %s", name)

	g.t.Logf("Updated golden file: %s", path)
	return true
}
