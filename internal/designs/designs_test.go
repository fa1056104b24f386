// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package designs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDesign(t *testing.T, dir, name, html string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(html), 0o644))
	return path
}

func TestLoadSessionDesigns_Empty(t *testing.T) {
	designs := LoadSessionDesigns(t.TempDir())
	assert.NotNil(t, designs)
	assert.Empty(t, designs)
}

func TestLoadSessionDesigns_AttributesExtracted(t *testing.T) {
	cwd := t.TempDir()
	writeDesign(t, cwd, "home.html", `<html data-title="Home Screen" data-screen-type='mobile'><body/></html>`)

	designs := LoadSessionDesigns(cwd)
	require.Len(t, designs, 1)
	assert.Equal(t, "home.html", designs[0].Filename)
	assert.Equal(t, "Home Screen", designs[0].Title)
	assert.Equal(t, "mobile", designs[0].ScreenType)
	assert.Contains(t, designs[0].HTML, "data-title")
}

func TestLoadSessionDesigns_FallbackTitleAndType(t *testing.T) {
	cwd := t.TempDir()
	writeDesign(t, cwd, "pricing-page-v2.html", `<html><body>plain</body></html>`)

	designs := LoadSessionDesigns(cwd)
	require.Len(t, designs, 1)
	assert.Equal(t, "Pricing Page V2", designs[0].Title)
	assert.Equal(t, "web", designs[0].ScreenType)
}

func TestLoadSessionDesigns_ScansScreensSubdirAndSkipsDuplicates(t *testing.T) {
	cwd := t.TempDir()
	writeDesign(t, cwd, "home.html", `<html data-title="Root Copy"></html>`)
	writeDesign(t, filepath.Join(cwd, "screens"), "home.html", `<html data-title="Screens Copy"></html>`)
	writeDesign(t, filepath.Join(cwd, "screens"), "about.html", `<html data-title="About"></html>`)

	designs := LoadSessionDesigns(cwd)
	require.Len(t, designs, 2)

	titles := []string{designs[0].Title, designs[1].Title}
	assert.Contains(t, titles, "Root Copy")
	assert.Contains(t, titles, "About")
	assert.NotContains(t, titles, "Screens Copy")
}

func TestLoadSessionDesigns_SortedByModifiedTime(t *testing.T) {
	cwd := t.TempDir()
	oldPath := writeDesign(t, cwd, "old.html", `<html data-title="Old"></html>`)
	writeDesign(t, cwd, "new.html", `<html data-title="New"></html>`)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	designs := LoadSessionDesigns(cwd)
	require.Len(t, designs, 2)
	assert.Equal(t, "Old", designs[0].Title)
	assert.Equal(t, "New", designs[1].Title)
}

func TestLoadSessionDesigns_IgnoresNonHTML(t *testing.T) {
	cwd := t.TempDir()
	writeDesign(t, cwd, "notes.txt", "not a design")
	writeDesign(t, cwd, "real.html", `<html data-title="Real"></html>`)

	designs := LoadSessionDesigns(cwd)
	require.Len(t, designs, 1)
	assert.Equal(t, "Real", designs[0].Title)
}

func TestResolvePath(t *testing.T) {
	cwd := t.TempDir()
	rootPath := writeDesign(t, cwd, "root.html", `<html></html>`)

	got, err := ResolvePath(cwd, "root.html")
	require.NoError(t, err)
	assert.Equal(t, rootPath, got)

	got, err = ResolvePath(cwd, "nested.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "screens", "nested.html"), got)

	_, err = ResolvePath(cwd, "../escape.html")
	assert.Error(t, err)

	_, err = ResolvePath(cwd, "")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	cwd := t.TempDir()
	path := writeDesign(t, cwd, "gone.html", `<html></html>`)

	require.NoError(t, Delete(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, Delete(path))
}

func TestCopySessionDesigns(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()
	writeDesign(t, filepath.Join(source, "screens"), "a.html", `<html>A</html>`)
	writeDesign(t, filepath.Join(source, "screens"), "b.html", `<html>B</html>`)
	writeDesign(t, filepath.Join(source, "screens"), "skip.css", "body {}")

	copied, err := CopySessionDesigns(source, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, copied)

	data, err := os.ReadFile(filepath.Join(dest, "screens", "a.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>A</html>", string(data))
}

func TestCopySessionDesigns_NoSourceScreens(t *testing.T) {
	copied, err := CopySessionDesigns(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, copied)
}
