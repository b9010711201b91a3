// Package walrus persists settlement snapshots to a content-addressed blob
// store, falling back to a deterministic local identifier when the store is
// not configured or unreachable.
package walrus

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	SourceLocal            = "local-fallback"
	SourceLocalAfterError  = "local-fallback-after-error"
	maxResponseBytes       = 1 << 20
	defaultEpochs          = 5
	defaultUploadTimeout   = 20 * time.Second
	octetStreamContentType = "application/octet-stream"
	localBlobIDPrefix      = "sha256:"
)

// ErrUploadFailed wraps the per-endpoint failures in strict mode.
var ErrUploadFailed = errors.New("walrus upload failed")

// Config selects the publisher and failure policy.
type Config struct {
	PublisherURL   string
	Epochs         int
	Timeout        time.Duration
	RequireSuccess bool
}

// Result describes where a snapshot ended up.
type Result struct {
	BlobID         string
	StoredOnWalrus bool
	Source         string
}

// Uploader writes snapshots to the publisher.
type Uploader struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func NewUploader(logger *slog.Logger, cfg Config) *Uploader {
	cfg.PublisherURL = strings.TrimRight(strings.TrimSpace(cfg.PublisherURL), "/")
	if cfg.Epochs < 1 {
		cfg.Epochs = defaultEpochs
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultUploadTimeout
	}
	return &Uploader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Config returns the effective configuration.
func (u *Uploader) Config() Config { return u.cfg }

// Encode renders v as compact JSON without HTML escaping. Map keys are
// sorted, so equal snapshots always encode to equal bytes.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// LocalBlobID is the content hash used when the snapshot is not stored remotely.
func LocalBlobID(data []byte) string {
	sum := sha256.Sum256(data)
	return localBlobIDPrefix + hex.EncodeToString(sum[:])
}

// Endpoints lists the publisher URLs tried, in order.
func (u *Uploader) Endpoints() []string {
	if u.cfg.PublisherURL == "" {
		return nil
	}
	base := u.cfg.PublisherURL
	return []string{
		fmt.Sprintf("%s/v1/blobs?epochs=%d", base, u.cfg.Epochs),
		fmt.Sprintf("%s/v1/store?epochs=%d", base, u.cfg.Epochs),
		base + "/v1/blobs",
	}
}

// Upload stores snapshot and returns its blob id. It only fails when the
// snapshot cannot be encoded, or every endpoint failed and RequireSuccess is set.
func (u *Uploader) Upload(ctx context.Context, snapshot any) (Result, error) {
	data, err := Encode(snapshot)
	if err != nil {
		return Result{}, err
	}
	local := LocalBlobID(data)

	endpoints := u.Endpoints()
	if len(endpoints) == 0 {
		return Result{BlobID: local, Source: SourceLocal}, nil
	}

	var errs []error
	for _, endpoint := range endpoints {
		blobID, err := u.put(ctx, endpoint, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s -> %w", endpoint, err))
			continue
		}
		return Result{BlobID: blobID, StoredOnWalrus: true, Source: endpoint}, nil
	}

	joined := errors.Join(errs...)
	if u.cfg.RequireSuccess {
		return Result{}, fmt.Errorf("%w: %w", ErrUploadFailed, joined)
	}

	u.logger.Warn("walrus upload failed, falling back to local content id",
		"blob_id", local,
		"error", joined,
	)
	return Result{BlobID: local, Source: SourceLocalAfterError}, nil
}

func (u *Uploader) put(ctx context.Context, endpoint string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", octetStreamContentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		payload = string(body)
	}
	blobID := ExtractBlobID(payload)
	if blobID == "" {
		return "", errors.New("missing blob id in response")
	}
	return blobID, nil
}

var (
	blobIDKeys    = []string{"blob_id", "blobId", "id"}
	containerKeys = []string{
		"newlyCreated",
		"alreadyCertified",
		"blobObject",
		"blob",
		"result",
		"data",
		"storage",
	}
)

// ExtractBlobID searches a decoded publisher response for a blob id. Direct
// keys win over nested containers; lists are searched in order; a bare
// non-empty string is itself the id.
func ExtractBlobID(payload any) string {
	switch v := payload.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		for _, key := range blobIDKeys {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		for _, key := range containerKeys {
			if found := ExtractBlobID(v[key]); found != "" {
				return found
			}
		}
	case []any:
		for _, item := range v {
			if found := ExtractBlobID(item); found != "" {
				return found
			}
		}
	}
	return ""
}
