package bridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
)

// Downloader fetches pushed file content from the bridge's transient file
// server into a scratch filesystem. Scratch names are unique per fetch so
// concurrent pushes on the same project never collide.
type Downloader struct {
	fs         billy.Filesystem
	dumpDir    string
	httpClient *http.Client
}

type DownloaderOptions struct {
	Filesystem billy.Filesystem
	DumpDir    string
	HTTPClient *http.Client
}

func NewDownloader(opts DownloaderOptions) (*Downloader, error) {
	if opts.Filesystem == nil {
		return nil, fmt.Errorf("scratch filesystem is required")
	}
	dumpDir := strings.TrimSpace(opts.DumpDir)
	if dumpDir == "" {
		dumpDir = "dump"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if err := opts.Filesystem.MkdirAll(dumpDir, 0o755); err != nil {
		return nil, err
	}
	return &Downloader{
		fs:         opts.Filesystem,
		dumpDir:    dumpDir,
		httpClient: httpClient,
	}, nil
}

// Fetch streams the remote content to a uniquely named scratch file and
// returns its path. On any error the partial file is removed before
// returning; on success the caller owns cleanup via Remove.
func (d *Downloader) Fetch(ctx context.Context, projectID, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", ErrInvalidInput
	}
	scratchPath := path.Join(d.dumpDir, fmt.Sprintf("%s_%s", projectID, uuid.New().String()))

	out, err := d.fs.Create(scratchPath)
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = out.Close()
			_ = d.fs.Remove(scratchPath)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download failed: status=%d url=%s", resp.StatusCode, url)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	committed = true
	return scratchPath, nil
}

// Open reopens a previously fetched scratch file for reading.
func (d *Downloader) Open(scratchPath string) (io.ReadCloser, error) {
	return d.fs.Open(scratchPath)
}

// ReadAll returns the full content of a scratch file.
func (d *Downloader) ReadAll(scratchPath string) ([]byte, error) {
	file, err := d.fs.Open(scratchPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return io.ReadAll(file)
}

// Remove deletes a scratch file. Missing files are not an error so cleanup
// can run unconditionally in defers.
func (d *Downloader) Remove(scratchPath string) error {
	err := d.fs.Remove(scratchPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
