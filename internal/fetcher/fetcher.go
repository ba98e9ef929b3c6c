// Package fetcher downloads source datasets over HTTP or FTP and parses the
// CSV, JSON, ZIP and XLSX payloads they arrive in.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Router dispatches to an HTTP or FTP fetcher by URL scheme.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewRouter returns a Router with default HTTP and FTP fetchers.
func NewRouter(httpOpts HTTPOptions, ftpOpts FTPOptions) *Router {
	return &Router{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
	}
}

func (r *Router) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch u.Scheme {
	case "http", "https":
		if r.HTTP != nil {
			return r.HTTP, nil
		}
	case "ftp":
		if r.FTP != nil {
			return r.FTP, nil
		}
	}
	return nil, eris.Errorf("fetcher: no fetcher for scheme %q", u.Scheme)
}

// Download fetches rawURL with the fetcher registered for its scheme.
func (r *Router) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile fetches rawURL to path with the fetcher registered for its scheme.
func (r *Router) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := r.pick(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}
