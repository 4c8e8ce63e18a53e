package iap

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCertsURL serves the IAP signing keys as a kid to PEM map.
const DefaultCertsURL = "https://www.gstatic.com/iap/verify/public_key"

var (
	// ErrKeyNotFound is returned when no published key matches the kid.
	ErrKeyNotFound = errors.New("iap: signing key not found")
	// ErrKeysFetchFailed is returned when the key endpoint cannot be read.
	ErrKeysFetchFailed = errors.New("iap: failed to fetch signing keys")
)

const (
	keyCacheSize = 64
	// minRefreshInterval bounds key endpoint fetches triggered by unknown kids.
	minRefreshInterval = time.Minute
)

// KeySet downloads and caches the IAP public keys.
type KeySet struct {
	url    string
	client *http.Client
	cache  *expirable.LRU[string, *ecdsa.PublicKey]

	mu          sync.Mutex
	lastRefresh time.Time
}

// NewKeySet constructs a KeySet. A zero ttl defaults to one hour.
func NewKeySet(url string, client *http.Client, ttl time.Duration) *KeySet {
	if url == "" {
		url = DefaultCertsURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &KeySet{
		url:    url,
		client: client,
		cache:  expirable.NewLRU[string, *ecdsa.PublicKey](keyCacheSize, nil, ttl),
	}
}

// Key returns the public key for kid, refreshing the set on a cache miss at
// most once per minRefreshInterval.
func (k *KeySet) Key(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	if key, ok := k.cache.Get(kid); ok {
		return key, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok := k.cache.Get(kid); ok {
		return key, nil
	}
	if !k.lastRefresh.IsZero() && time.Since(k.lastRefresh) < minRefreshInterval {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	k.lastRefresh = time.Now()
	if err := k.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := k.cache.Get(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

func (k *KeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeysFetchFailed, err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeysFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrKeysFetchFailed, resp.StatusCode)
	}

	var published map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&published); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrKeysFetchFailed, err)
	}
	for kid, pemData := range published {
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(pemData))
		if err != nil {
			// One malformed entry must not hide the others.
			continue
		}
		k.cache.Add(kid, key)
	}
	return nil
}
