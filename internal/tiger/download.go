// Package tiger downloads and parses Census TIGER/Line census tract
// shapefiles.
package tiger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crime-census/internal/fetcher"
	"github.com/sells-group/crime-census/internal/geoid"
	"github.com/sells-group/crime-census/internal/resilience"
)

// shapefileExts are the archive members ParseTracts reads.
var shapefileExts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

// DownloadURL returns the statewide tract archive for a vintage, e.g.
// https://www2.census.gov/geo/tiger/TIGER2020/TRACT/tl_2020_53_tract.zip.
// base may use the ftp scheme to read from the FTP mirror.
func DownloadURL(base string, year int, stateFIPS string) string {
	return fmt.Sprintf("%s/TIGER%d/TRACT/tl_%d_%s_tract.zip",
		strings.TrimRight(base, "/"), year, year, geoid.NormalizeState(stateFIPS))
}

// Download fetches a TIGER/Line archive into destDir and extracts the
// shapefile members next to it, returning the .shp path. A non-empty archive
// from an earlier run is reused.
func Download(ctx context.Context, f fetcher.Fetcher, url, destDir string) (string, error) {
	log := zap.L().With(zap.String("component", "tiger"), zap.String("url", url))

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create dest dir")
	}
	archive := filepath.Join(destDir, filepath.Base(url))

	if fi, err := os.Stat(archive); err == nil && fi.Size() > 0 {
		log.Debug("reusing tract archive", zap.String("path", archive))
	} else if err := fetchArchive(ctx, f, url, archive); err != nil {
		return "", err
	}

	dir := strings.TrimSuffix(archive, filepath.Ext(archive))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create extract dir")
	}
	files, err := fetcher.ExtractZIP(archive, dir, shapefileExts...)
	if err != nil {
		return "", eris.Wrap(err, "tiger: extract ZIP")
	}
	shp, err := FindShapefile(dir)
	if err != nil {
		return "", err
	}

	log.Info("tract shapefile ready", zap.String("path", shp), zap.Int("files", len(files)))
	return shp, nil
}

// fetchArchive downloads url to path through a .part file so an interrupted
// transfer is never mistaken for a complete archive.
func fetchArchive(ctx context.Context, f fetcher.Fetcher, url, path string) error {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("tiger", "download archive")

	part := path + ".part"
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		if _, err := f.DownloadToFile(ctx, url, part); err != nil {
			return err
		}
		return os.Rename(part, path)
	})
	if err != nil {
		_ = os.Remove(part)
		return eris.Wrap(err, "tiger: download shapefile")
	}
	return nil
}

// FindShapefile returns the first .shp file under dir, searching
// subdirectories.
func FindShapefile(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrap(err, "tiger: find .shp file")
	}
	if found == "" {
		return "", eris.Wrapf(os.ErrNotExist, "tiger: no .shp file found in %s", dir)
	}
	return found, nil
}
