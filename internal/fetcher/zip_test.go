package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zipOf writes an archive of name/content pairs and returns its path.
// A name ending in "/" becomes a directory entry.
func zipOf(t *testing.T, members ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "members.zip")
	out, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(out)
	for i := 0; i+1 < len(members); i += 2 {
		w, err := zw.Create(members[i])
		require.NoError(t, err)
		_, err = w.Write([]byte(members[i+1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
	return path
}

func TestExtractZIP_AllMembers(t *testing.T) {
	src := zipOf(t,
		"tl_2020_53_tract.shp", "shp",
		"tl_2020_53_tract.prj", "prj",
		"docs/", "",
		"docs/readme.txt", "nested",
	)
	dest := t.TempDir()

	got, err := ExtractZIP(src, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dest, "docs", "readme.txt"),
		filepath.Join(dest, "tl_2020_53_tract.prj"),
		filepath.Join(dest, "tl_2020_53_tract.shp"),
	}, got)

	data, err := os.ReadFile(filepath.Join(dest, "tl_2020_53_tract.prj"))
	require.NoError(t, err)
	assert.Equal(t, "prj", string(data))
	assert.NoFileExists(t, filepath.Join(dest, "tl_2020_53_tract.prj.part"))
}

func TestExtractZIP_ExtensionFilter(t *testing.T) {
	src := zipOf(t,
		"tl_2020_53_tract.shp", "shp",
		"tl_2020_53_tract.DBF", "dbf",
		"tl_2020_53_tract.shp.ea.iso.xml", "xml",
		"README.txt", "readme",
	)
	dest := t.TempDir()

	got, err := ExtractZIP(src, dest, ".shp", ".dbf")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dest, "tl_2020_53_tract.DBF"),
		filepath.Join(dest, "tl_2020_53_tract.shp"),
	}, got)
	assert.NoFileExists(t, filepath.Join(dest, "README.txt"))
}

func TestExtractZIP_RejectsEscapingEntries(t *testing.T) {
	dest := t.TempDir()

	_, err := ExtractZIP(zipOf(t, "../evil.txt", "pwned"), dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.txt"))
}

func TestExtractZIP_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := ExtractZIP(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip: open")
}
