// Package torrentclient implements a qBittorrent WebUI API client.
package torrentclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrAuthFailed is returned when the WebUI rejects the credentials.
var ErrAuthFailed = errors.New("torrentclient: authentication failed")

// Config holds the connection details for one qBittorrent instance.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
}

// Client talks to one qBittorrent instance. Login establishes a session
// cookie; the probed version selects the stop/start verb set, which changed
// in qBittorrent 5.0.
type Client struct {
	baseURL    string
	config     Config
	httpClient *http.Client
	logger     *zerolog.Logger

	version      string
	useStopStart bool
}

// New creates a client for the given instance.
func New(cfg Config, logger *zerolog.Logger) *Client {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	jar, _ := cookiejar.New(nil)

	l := logger.With().
		Str("component", "torrent-client").
		Str("host", cfg.Host).
		Logger()

	return &Client{
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		config:  cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		logger: &l,
	}
}

// Login authenticates and stores the session cookie. It also probes the
// application version so later calls pick the right endpoint verbs.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.config.Username)
	form.Set("password", c.config.Password)

	body, err := c.postForm(ctx, "/api/v2/auth/login", form)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(string(body), "Ok") {
		return ErrAuthFailed
	}

	version, err := c.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe version: %w", err)
	}
	c.version = version
	c.useStopStart = majorVersion(version) >= 5

	c.logger.Debug().Str("version", version).Msg("logged in")
	return nil
}

// Version returns the qBittorrent application version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/api/v2/app/version", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// majorVersion parses the leading number from a version like "v5.0.1".
func majorVersion(version string) int {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	head, _, _ := strings.Cut(v, ".")
	major, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return major
}

// Stop stops (qBittorrent >= 5.0) or pauses the given torrents.
func (c *Client) Stop(ctx context.Context, hashes ...string) error {
	endpoint := "/api/v2/torrents/pause"
	if c.useStopStart {
		endpoint = "/api/v2/torrents/stop"
	}
	return c.hashAction(ctx, endpoint, hashes)
}

// Start starts (qBittorrent >= 5.0) or resumes the given torrents.
func (c *Client) Start(ctx context.Context, hashes ...string) error {
	endpoint := "/api/v2/torrents/resume"
	if c.useStopStart {
		endpoint = "/api/v2/torrents/start"
	}
	return c.hashAction(ctx, endpoint, hashes)
}

// Recheck forces a hash re-verification of the given torrents.
func (c *Client) Recheck(ctx context.Context, hashes ...string) error {
	return c.hashAction(ctx, "/api/v2/torrents/recheck", hashes)
}

func (c *Client) hashAction(ctx context.Context, endpoint string, hashes []string) error {
	form := url.Values{}
	form.Set("hashes", strings.Join(hashes, "|"))
	_, err := c.postForm(ctx, endpoint, form)
	return err
}

// AddOptions control how a torrent is injected.
type AddOptions struct {
	SavePath     string
	Category     string
	Tags         []string
	Paused       bool
	SkipChecking bool
}

// AddTorrent uploads raw metadata bytes as a multipart form.
func (c *Client) AddTorrent(ctx context.Context, data []byte, opts AddOptions) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("torrents", "upload.torrent")
	if err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}

	fields := map[string]string{
		"savepath":      opts.SavePath,
		"category":      opts.Category,
		"tags":          strings.Join(opts.Tags, ","),
		"paused":        strconv.FormatBool(opts.Paused),
		"stopped":       strconv.FormatBool(opts.Paused), // qBittorrent >= 5.0 name
		"skip_checking": strconv.FormatBool(opts.SkipChecking),
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := w.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to build upload form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/torrents/add", &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("add failed with status %d: %s", resp.StatusCode, string(body))
	}
	if strings.HasPrefix(string(body), "Fails") {
		return fmt.Errorf("client rejected the torrent: %s", string(body))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doRequest(req)
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthFailed
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
