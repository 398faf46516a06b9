package cluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/syntrixbase/coldtier/internal/metrics"
	"golang.org/x/time/rate"
)

// Client talks to the administrative API of the cluster.
type Client struct {
	baseURL     string
	repository  string
	bucket      string
	timeout     time.Duration
	listTimeout time.Duration
	httpClient  *http.Client
}

// New creates a new cluster Client.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		repository:  cfg.Repository,
		bucket:      cfg.Bucket,
		timeout:     cfg.Timeout,
		listTimeout: cfg.SnapshotListTimeout,
		httpClient:  &http.Client{Transport: transport},
	}, nil
}

func newTransport(cfg Config) (http.RoundTripper, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // clusters commonly run with self-signed certificates
	}
	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig

	var rt http.RoundTripper = base
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rt = &rateLimitedTransport{next: rt, limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)}
	}
	rt = promhttp.InstrumentRoundTripperDuration(metrics.ClusterRequestDuration, rt)
	rt = promhttp.InstrumentRoundTripperCounter(metrics.ClusterRequests, rt)
	return rt, nil
}

// rateLimitedTransport blocks each request until the limiter admits it.
type rateLimitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// Repository returns the snapshot repository this client operates on.
func (c *Client) Repository() string {
	return c.repository
}

// ListIndices enumerates every index of the cluster.
func (c *Client) ListIndices(ctx context.Context) ([]IndexInfo, error) {
	resp, err := c.get(ctx, "/_cat/indices?format=json")
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, resp.unexpected()
	}
	var out []IndexInfo
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListIndicesByPattern enumerates the indices matching pattern. No match is an empty result.
func (c *Client) ListIndicesByPattern(ctx context.Context, pattern string) ([]IndexInfo, error) {
	resp, err := c.get(ctx, "/_cat/indices/"+url.PathEscape(pattern)+"?format=json")
	if err != nil {
		return nil, err
	}
	if resp.code == http.StatusNotFound {
		return []IndexInfo{}, nil
	}
	if resp.code != http.StatusOK {
		return nil, resp.unexpected()
	}
	var out []IndexInfo
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// IndexSettings returns the creation date and store kind of index.
func (c *Client) IndexSettings(ctx context.Context, index string) (IndexSettings, error) {
	resp, err := c.get(ctx, "/"+url.PathEscape(index)+"/_settings")
	if err != nil {
		return IndexSettings{}, err
	}
	if resp.code == http.StatusNotFound {
		return IndexSettings{}, ErrNotFound
	}
	if resp.code != http.StatusOK {
		return IndexSettings{}, resp.unexpected()
	}
	var body settingsResponse
	if err := resp.decode(&body); err != nil {
		return IndexSettings{}, err
	}
	entry, ok := body[index]
	if !ok {
		return IndexSettings{}, fmt.Errorf("settings of %s missing from response", index)
	}
	return IndexSettings{
		CreationDate: entry.Settings.Index.CreationDate,
		StoreType:    entry.Settings.Index.Store.Type,
	}, nil
}

// IndexAliases returns the aliases attached to index, keyed by alias name.
func (c *Client) IndexAliases(ctx context.Context, index string) (map[string]AliasConfig, error) {
	resp, err := c.get(ctx, "/"+url.PathEscape(index)+"/_alias")
	if err != nil {
		return nil, err
	}
	if resp.code == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.code != http.StatusOK {
		return nil, resp.unexpected()
	}
	var body aliasesResponse
	if err := resp.decode(&body); err != nil {
		return nil, err
	}
	aliases := body[index].Aliases
	if aliases == nil {
		aliases = map[string]AliasConfig{}
	}
	return aliases, nil
}

// IndexExists reports whether index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	resp, err := c.request(ctx, http.MethodHead, "/"+url.PathEscape(index), nil, c.timeout)
	if err != nil {
		return false, err
	}
	switch resp.code {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, resp.unexpected()
	}
}

// DeleteIndex deletes index. A missing index yields ErrNotFound.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	resp, err := c.request(ctx, http.MethodDelete, "/"+url.PathEscape(index), nil, c.timeout)
	if err != nil {
		return err
	}
	switch resp.code {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return resp.unexpected()
	}
}

// CreateIndexWithWriteAlias creates index as the write index of alias.
func (c *Client) CreateIndexWithWriteAlias(ctx context.Context, index, alias string) error {
	body := map[string]any{
		"aliases": map[string]any{
			alias: map[string]bool{"is_write_index": true},
		},
	}
	resp, err := c.request(ctx, http.MethodPut, "/"+url.PathEscape(index), body, c.timeout)
	if err != nil {
		return err
	}
	if resp.code != http.StatusOK && resp.code != http.StatusCreated {
		return resp.unexpected()
	}
	return nil
}

// AddWriteAlias points alias at an existing index as its write index.
func (c *Client) AddWriteAlias(ctx context.Context, index, alias string) error {
	body := map[string]any{
		"actions": []any{
			map[string]any{"add": map[string]any{
				"index":          index,
				"alias":          alias,
				"is_write_index": true,
			}},
		},
	}
	resp, err := c.post(ctx, "/_aliases", body)
	if err != nil {
		return err
	}
	if resp.code != http.StatusOK {
		return resp.unexpected()
	}
	return nil
}

// WriteAliases returns the aliases ending in suffix that designate a write index, sorted.
func (c *Client) WriteAliases(ctx context.Context, suffix string) ([]string, error) {
	resp, err := c.get(ctx, "/_alias")
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, resp.unexpected()
	}
	var body aliasesResponse
	if err := resp.decode(&body); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, entry := range body {
		for alias, cfg := range entry.Aliases {
			if cfg.IsWriteIndex && strings.HasSuffix(alias, suffix) {
				seen[alias] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for alias := range seen {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out, nil
}

// WriteIndex resolves the index alias currently writes to.
func (c *Client) WriteIndex(ctx context.Context, alias string) (string, error) {
	resp, err := c.get(ctx, "/_alias/"+url.PathEscape(alias))
	if err != nil {
		return "", err
	}
	if resp.code == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.code != http.StatusOK {
		return "", resp.unexpected()
	}
	var body aliasesResponse
	if err := resp.decode(&body); err != nil {
		return "", err
	}
	for index, entry := range body {
		if entry.Aliases[alias].IsWriteIndex {
			return index, nil
		}
	}
	return "", fmt.Errorf("alias %s has no write index: %w", alias, ErrNotFound)
}

// Rollover asks the engine to roll alias over when conditions hold.
func (c *Client) Rollover(ctx context.Context, alias string, conditions RolloverConditions) (RolloverResult, error) {
	body := map[string]any{"conditions": conditions}
	resp, err := c.post(ctx, "/"+url.PathEscape(alias)+"/_rollover", body)
	if err != nil {
		return RolloverResult{}, err
	}
	if resp.code != http.StatusOK {
		return RolloverResult{}, resp.unexpected()
	}
	var out RolloverResult
	if err := resp.decode(&out); err != nil {
		return RolloverResult{}, err
	}
	return out, nil
}

func (c *Client) snapshotPath(name string) string {
	return "/_snapshot/" + url.PathEscape(c.repository) + "/" + url.PathEscape(name)
}

// CreateSnapshot starts a non-partial snapshot named name of indices.
// A name already taken in the repository yields ErrSnapshotExists.
func (c *Client) CreateSnapshot(ctx context.Context, name string, indices []string) error {
	body := map[string]any{
		"indices": indices,
		"partial": false,
	}
	resp, err := c.request(ctx, http.MethodPut, c.snapshotPath(name), body, c.timeout)
	if err != nil {
		return err
	}
	switch resp.code {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return ErrSnapshotExists
	default:
		return resp.unexpected()
	}
}

// SnapshotStatus returns the current state of snapshot name.
func (c *Client) SnapshotStatus(ctx context.Context, name string) (SnapshotState, error) {
	resp, err := c.get(ctx, c.snapshotPath(name)+"/_status")
	if err != nil {
		return "", err
	}
	if resp.code == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.code != http.StatusOK {
		return "", resp.unexpected()
	}
	var body snapshotsResponse
	if err := resp.decode(&body); err != nil {
		return "", err
	}
	if len(body.Snapshots) == 0 {
		return "", fmt.Errorf("status of snapshot %s missing from response", name)
	}
	return body.Snapshots[0].State, nil
}

// SnapshotDetail returns the detail view of snapshot name.
func (c *Client) SnapshotDetail(ctx context.Context, name string) (SnapshotInfo, error) {
	resp, err := c.get(ctx, c.snapshotPath(name))
	if err != nil {
		return SnapshotInfo{}, err
	}
	if resp.code == http.StatusNotFound {
		return SnapshotInfo{}, ErrNotFound
	}
	if resp.code != http.StatusOK {
		return SnapshotInfo{}, resp.unexpected()
	}
	var body snapshotsResponse
	if err := resp.decode(&body); err != nil {
		return SnapshotInfo{}, err
	}
	if len(body.Snapshots) == 0 {
		return SnapshotInfo{}, ErrNotFound
	}
	return body.Snapshots[0], nil
}

// MountSearchable mounts req.Index of snapshot as a remote_snapshot index named req.RenameTo.
func (c *Client) MountSearchable(ctx context.Context, snapshot string, req MountRequest) error {
	body := map[string]any{
		"indices":            req.Index,
		"rename_pattern":     "^" + regexp.QuoteMeta(req.Index) + "$",
		"rename_replacement": req.RenameTo,
		"storage_type":       StoreTypeRemoteSnapshot,
		"index_settings": map[string]any{
			"index.number_of_replicas": req.Replicas,
		},
	}
	resp, err := c.post(ctx, c.snapshotPath(snapshot)+"/_restore", body)
	if err != nil {
		return err
	}
	if resp.code != http.StatusOK && resp.code != http.StatusAccepted {
		return resp.unexpected()
	}
	return nil
}

// DeleteSnapshot deletes snapshot name. A missing snapshot yields ErrNotFound.
func (c *Client) DeleteSnapshot(ctx context.Context, name string) error {
	resp, err := c.request(ctx, http.MethodDelete, c.snapshotPath(name), nil, c.timeout)
	if err != nil {
		return err
	}
	switch resp.code {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return resp.unexpected()
	}
}

// ListSnapshots returns the repository catalog sorted by end time, oldest first.
func (c *Client) ListSnapshots(ctx context.Context) ([]SnapshotEntry, error) {
	path := "/_cat/snapshots/" + url.PathEscape(c.repository) + "?v&s=endEpoch&format=json"
	resp, err := c.request(ctx, http.MethodGet, path, nil, c.listTimeout)
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, resp.unexpected()
	}
	var out []SnapshotEntry
	if err := resp.decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnsureRepository registers the s3 snapshot repository when it is missing.
// It reports whether the repository was created.
func (c *Client) EnsureRepository(ctx context.Context) (bool, error) {
	path := "/_snapshot/" + url.PathEscape(c.repository)
	resp, err := c.get(ctx, path)
	if err != nil {
		return false, err
	}
	if resp.code == http.StatusOK {
		return false, nil
	}
	if resp.code != http.StatusNotFound {
		return false, resp.unexpected()
	}
	if c.bucket == "" {
		return false, fmt.Errorf("repository %s is missing and no bucket is configured", c.repository)
	}

	body := map[string]any{
		"type": "s3",
		"settings": map[string]any{
			"bucket":   c.bucket,
			"compress": true,
		},
	}
	resp, err = c.request(ctx, http.MethodPut, path, body, c.timeout)
	if err != nil {
		return false, err
	}
	if resp.code != http.StatusOK {
		return false, resp.unexpected()
	}
	return true, nil
}

type response struct {
	method string
	path   string
	code   int
	body   []byte
}

func (r *response) unexpected() error {
	return &StatusError{Method: r.method, Path: r.path, Code: r.code, Body: strings.TrimSpace(string(r.body))}
}

func (r *response) decode(v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*response, error) {
	return c.request(ctx, http.MethodGet, path, nil, c.timeout)
}

func (c *Client) post(ctx context.Context, path string, body any) (*response, error) {
	return c.request(ctx, http.MethodPost, path, body, c.timeout)
}

// request performs one call and buffers the response body, so the per-request
// timeout can cover reading it.
func (c *Client) request(ctx context.Context, method, path string, body any, timeout time.Duration) (*response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}
	return &response{method: method, path: path, code: resp.StatusCode, body: data}, nil
}
