package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoki/shuttle/internal/config"
)

func TestRunCreatesLayout(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, Run(root, "demo"))

	for _, d := range []string{
		".shuttle/archive",
		".shuttle/quarantine",
		".shuttle/logs",
		"prds",
		"prds/done",
		"specs",
	} {
		info, err := os.Stat(filepath.Join(root, d))
		require.NoError(t, err, d)
		assert.True(t, info.IsDir(), d)
	}

	cfg, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Project.Name)

	ignore, err := os.ReadFile(filepath.Join(root, ".shuttle", ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "*\n", string(ignore), "data dir must ignore its own contents")
}

func TestRunRefusesExistingProject(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Run(root, ""))

	err := Run(root, "")
	assert.ErrorContains(t, err, "already exists")
}

func TestRunDefaultsProjectNameToBasename(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Run(root, ""))

	cfg, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root), cfg.Project.Name)
}
