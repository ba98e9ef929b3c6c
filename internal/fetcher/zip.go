package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// maxEntryBytes caps a single extracted entry. Statewide TIGER tract
// archives are well under this.
const maxEntryBytes = 1 << 30

// ExtractZIP unpacks zipPath into destDir and returns the extracted file
// paths in sorted order. When exts is non-empty only entries with one of
// those extensions (case-insensitive, e.g. ".shp") are written. Entries that
// would land outside destDir are rejected.
func ExtractZIP(zipPath, destDir string, exts ...string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	root := filepath.Clean(destDir) + string(os.PathSeparator)
	want := func(name string) bool {
		if len(exts) == 0 {
			return true
		}
		ext := filepath.Ext(name)
		return slices.ContainsFunc(exts, func(e string) bool { return strings.EqualFold(e, ext) })
	}

	var out []string
	for _, f := range r.File {
		dest := filepath.Join(destDir, f.Name)
		if dest != filepath.Clean(destDir) && !strings.HasPrefix(dest, root) {
			return out, eris.Errorf("zip: entry %q escapes %s", f.Name, destDir)
		}
		if f.FileInfo().IsDir() || !want(f.Name) {
			continue
		}
		if err := writeEntry(f, dest); err != nil {
			return out, err
		}
		out = append(out, dest)
	}

	slices.Sort(out)
	return out, nil
}

// writeEntry copies one archive member to dest through a temporary file.
func writeEntry(f *zip.File, dest string) error {
	if f.UncompressedSize64 > maxEntryBytes {
		return eris.Errorf("zip: entry %q is %d bytes, limit %d", f.Name, f.UncompressedSize64, maxEntryBytes)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %q", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	tmp := dest + ".part"
	if _, err := writeFile(tmp, io.LimitReader(rc, maxEntryBytes)); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "zip: write entry %q", f.Name)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "zip: finalize entry %q", f.Name)
	}
	return nil
}
