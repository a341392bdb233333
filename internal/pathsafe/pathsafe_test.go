package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRelativeInsideRoot(t *testing.T) {
	root := t.TempDir()
	p, err := Resolve(root, "a/b.json", "path")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "a/b.json"), p)
}

func TestResolveRejectsDotDotEscape(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "../escape.json", "path")
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
}

func TestResolveRejectsAbsoluteOutside(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "/etc/passwd", "path")
	require.Error(t, err)
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink(outside, link))

	_, err := Resolve(root, "escape/file.json", "path")
	require.Error(t, err)
}

func TestResolveAllowsSymlinkInsideRoot(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "real")
	require.NoError(t, os.Mkdir(sub, 0o755))
	link := filepath.Join(root, "alias")
	require.NoError(t, os.Symlink(sub, link))

	p, err := Resolve(root, "alias/file.json", "path")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "alias/file.json"), p)
}
