package iap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMetadataURL is the instance metadata server.
const DefaultMetadataURL = "http://metadata.google.internal"

// ErrMetadataUnavailable is returned when the metadata server cannot be read.
var ErrMetadataUnavailable = errors.New("iap: metadata server unavailable")

// StaticAudience is a fixed audience, used when configured explicitly.
type StaticAudience string

// Audience implements AudienceSource.
func (s StaticAudience) Audience(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("iap: empty audience")
	}
	return string(s), nil
}

// MetadataAudience derives /projects/<number>/apps/<id> from the metadata
// server. The value is computed at most once per process on success;
// concurrent first calls may each compute it, which is harmless.
type MetadataAudience struct {
	baseURL string
	client  *http.Client
	cached  atomic.Pointer[string]
}

// NewMetadataAudience constructs a MetadataAudience.
func NewMetadataAudience(baseURL string, client *http.Client) *MetadataAudience {
	if baseURL == "" {
		baseURL = DefaultMetadataURL
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &MetadataAudience{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Audience implements AudienceSource.
func (m *MetadataAudience) Audience(ctx context.Context) (string, error) {
	if aud := m.cached.Load(); aud != nil {
		return *aud, nil
	}

	var number, id string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := m.fetch(gctx, "numeric-project-id")
		number = v
		return err
	})
	g.Go(func() error {
		v, err := m.fetch(gctx, "project-id")
		id = v
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	aud := fmt.Sprintf("/projects/%s/apps/%s", number, id)
	m.cached.Store(&aud)
	return aud, nil
}

func (m *MetadataAudience) fetch(ctx context.Context, item string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/computeMetadata/v1/project/"+item, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}
	req.Header.Set("Metadata-Flavor", "Google")
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMetadataUnavailable, item, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: status %d", ErrMetadataUnavailable, item, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMetadataUnavailable, item, err)
	}
	value := strings.TrimSpace(string(body))
	if value == "" {
		return "", fmt.Errorf("%w: %s: empty", ErrMetadataUnavailable, item)
	}
	return value, nil
}
