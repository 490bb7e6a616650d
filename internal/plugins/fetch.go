package plugins

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/lolo-bridge/internal/errors"
)

// ErrFetchDisabled is returned by Fetch unless plugins.allow_fetch is set
var ErrFetchDisabled = stderrors.New("plugin fetching is disabled")

// fetchClient has transport timeouts only; callers bound each fetch with a context
var fetchClient = &http.Client{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	},
}

// Fetch downloads a bundle from rawURL into the bundle directory and returns
// its id. It reads only the loader's config, so it may run off the event loop.
func (l *Loader) Fetch(ctx context.Context, rawURL string) (string, error) {
	if !l.cfg.AllowFetch {
		return "", ErrFetchDisabled
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid plugin URL: %w", err)
	}

	filename := path.Base(u.Path)
	if !strings.HasSuffix(filename, ".go") {
		return "", &errors.BotError{
			Type:           errors.ErrorTypeTrustBoundary,
			UserMessage:    "Plugin URL must end with .go",
			InternalDetail: fmt.Sprintf("url=%s", rawURL),
		}
	}
	id := strings.TrimSuffix(filename, ".go")
	if !bundleID.MatchString(id) {
		return "", errors.NewTrustBoundaryError(id, "invalid bundle name")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", errors.NewTrustBoundaryError(id, fmt.Sprintf("scheme %q is not allowed", u.Scheme))
	}
	if !l.hostAllowed(u.Hostname()) {
		return "", errors.NewTrustBoundaryError(id, fmt.Sprintf("host %s is not allowed", u.Hostname()))
	}

	src, err := l.download(ctx, u.String())
	if err != nil {
		return "", err
	}
	if err := l.writeBundle(id, src); err != nil {
		return "", err
	}
	l.logger.Info("Downloaded plugin %s from %s", id, rawURL)
	return id, nil
}

// Install loads a fetched bundle, reloading it when already loaded
func (l *Loader) Install(id string) error {
	if l.IsLoaded(id) {
		_, err := l.Reload(id)
		return err
	}
	return l.Load(id)
}

func (l *Loader) hostAllowed(host string) bool {
	for _, allowed := range l.cfg.AllowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

// download fetches the body, refusing anything over plugins.max_fetch_kb
func (l *Loader) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download plugin: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download plugin: HTTP %d", resp.StatusCode)
	}

	limit := int64(l.cfg.MaxFetchKB) * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("plugin exceeds %d KB", l.cfg.MaxFetchKB)
	}
	return body, nil
}

// writeBundle writes src to the bundle path through a temp file
func (l *Loader) writeBundle(id string, src []byte) error {
	if err := os.MkdirAll(l.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plugin dir: %w", err)
	}

	dest := l.Path(id)
	tmp, err := os.CreateTemp(filepath.Dir(dest), id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write plugin: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write plugin: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write plugin: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to install plugin: %w", err)
	}
	return nil
}
