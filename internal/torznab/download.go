package torznab

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type httpError struct {
	status int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("download failed with status %d", e.status)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrMagnetLink)
}

func isMagnet(link string) bool {
	return strings.HasPrefix(strings.ToLower(link), "magnet:")
}

// isMagnetPayload catches providers that answer a download request with a
// magnet URI body instead of a metadata file.
func isMagnetPayload(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && bytes.HasPrefix(bytes.ToLower(trimmed), []byte("magnet:"))
}

// relativePath rewrites a result link into a provider-relative path so the
// request carries the API key header. Links pointing elsewhere are kept
// absolute and fetched as-is.
func relativePath(baseURL, link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	if parsed.Host == "" {
		return link
	}
	base, err := url.Parse(baseURL)
	if err != nil || parsed.Host != base.Host {
		return link
	}
	path := parsed.Path
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return path
}

func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}
