// Package downloader implements the HTTP download manager used by the hub
// package to fetch tokenizer and corpus files.
package downloader

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
)

// ProgressCallback is called as download progresses, with the bytes
// transferred so far and the total size (-1 if unknown).
type ProgressCallback func(downloadedBytes, totalBytes int64)

// Manager downloads files over HTTP with optional bearer authentication.
type Manager struct {
	client    *http.Client
	authToken string
}

// New creates a Manager with the default HTTP client.
func New() *Manager {
	return &Manager{client: http.DefaultClient}
}

// WithAuthToken sets the bearer token sent with every request. It returns the
// updated Manager, for chaining.
func (m *Manager) WithAuthToken(token string) *Manager {
	m.authToken = token
	return m
}

// WithClient sets a custom HTTP client. It returns the updated Manager.
func (m *Manager) WithClient(client *http.Client) *Manager {
	m.client = client
	return m
}

// Download fetches url into filePath, overwriting it. The context cancels the
// transfer mid-flight.
func (m *Manager) Download(ctx context.Context, url, filePath string, progress ProgressCallback) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to create request for %q", url)
	}
	if m.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.authToken)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch %q", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fetching %q: unexpected status %s", url, resp.Status)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}

	var written int64
	buf := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			_ = f.Close()
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				_ = f.Close()
				return errors.Wrapf(writeErr, "failed writing to %q", filePath)
			}
			written += int64(n)
			if progress != nil {
				progress(written, resp.ContentLength)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = f.Close()
			return errors.Wrapf(readErr, "failed reading body of %q", url)
		}
	}
	return errors.Wrapf(f.Close(), "failed to close %q", filePath)
}
