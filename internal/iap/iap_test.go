package iap

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudience = "/projects/1234/apps/demo-project"

type fixture struct {
	key       *ecdsa.PrivateKey
	kid       string
	keyHits   atomic.Int32
	verifier  *Verifier
	resolver  *Resolver
	keyServer *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	f := &fixture{key: key, kid: "test-kid"}
	f.keyServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.keyHits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{f.kid: string(pemData), "broken": "not a pem"})
	}))
	t.Cleanup(f.keyServer.Close)

	keys := NewKeySet(f.keyServer.URL, f.keyServer.Client(), time.Minute)
	f.verifier = NewVerifier(keys, StaticAudience(testAudience), "")
	f.resolver = NewResolver(f.verifier, nil)
	return f
}

func (f *fixture) sign(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	now := time.Now()
	c := jwt.MapClaims{
		"iss":   DefaultIssuer,
		"aud":   testAudience,
		"sub":   "accounts.google.com:1001",
		"email": "alice@example.com",
		"iat":   now.Unix(),
		"exp":   now.Add(10 * time.Minute).Unix(),
	}
	if mutate != nil {
		mutate(c)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, c)
	token.Header["kid"] = f.kid
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func TestVerifyValidAssertion(t *testing.T) {
	f := newFixture(t)

	identity, err := f.verifier.Verify(context.Background(), f.sign(t, nil))
	require.NoError(t, err)
	assert.Equal(t, Identity{Email: "alice@example.com", Subject: "accounts.google.com:1001"}, identity)

	_, err = f.verifier.Verify(context.Background(), f.sign(t, nil))
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.keyHits.Load(), "keys should be cached between verifications")
}

func TestVerifyRejectsBadClaims(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(jwt.MapClaims){
		"wrong audience": func(c jwt.MapClaims) { c["aud"] = "/projects/1/apps/other" },
		"wrong issuer":   func(c jwt.MapClaims) { c["iss"] = "https://evil.example" },
		"expired":        func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
		"no expiry":      func(c jwt.MapClaims) { delete(c, "exp") },
		"no email":       func(c jwt.MapClaims) { delete(c, "email") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.verifier.Verify(context.Background(), f.sign(t, mutate))
			assert.Error(t, err)
		})
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	f := newFixture(t)
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": DefaultIssuer, "aud": testAudience, "sub": "s", "email": "mallory@example.com",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	token.Header["kid"] = f.kid
	signed, err := token.SignedString(other)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestVerifyUnknownKid(t *testing.T) {
	f := newFixture(t)
	f.kid = "rotated"
	signed := f.sign(t, nil)
	f.kid = "test-kid"

	_, err := f.verifier.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestUnknownKidsRefreshKeysOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier.Verify(context.Background(), f.sign(t, nil))
	require.NoError(t, err)
	require.Equal(t, int32(1), f.keyHits.Load())

	for i := 0; i < 20; i++ {
		f.kid = fmt.Sprintf("random-%d", i)
		signed := f.sign(t, nil)
		f.kid = "test-kid"

		_, err := f.verifier.Verify(context.Background(), signed)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}
	assert.Equal(t, int32(1), f.keyHits.Load())

	_, err = f.verifier.Verify(context.Background(), f.sign(t, nil))
	assert.NoError(t, err)
}

func TestColdUnknownKidFetchesOnce(t *testing.T) {
	f := newFixture(t)
	f.kid = "rotated"
	first := f.sign(t, nil)
	second := f.sign(t, nil)
	f.kid = "test-kid"

	for _, signed := range []string{first, second} {
		_, err := f.verifier.Verify(context.Background(), signed)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}
	assert.Equal(t, int32(1), f.keyHits.Load())
}

func TestResolve(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/table_maintenance/", nil)
	req.Header.Set(HeaderAssertion, f.sign(t, nil))
	assert.Equal(t, "alice@example.com", f.resolver.Resolve(req).Email)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAssertion, "garbage")
	assert.False(t, f.resolver.Resolve(req).Verified())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, Identity{}, f.resolver.Resolve(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCron, "true")
	assert.Equal(t, Identity{Email: CronJobEmail}, f.resolver.Resolve(req))
}

func TestForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "None", ForwardedFor(req))
	req.Header.Set(HeaderForwardedFor, "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1, 10.0.0.2", ForwardedFor(req))
}

func TestMetadataAudience(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Metadata-Flavor") != "Google" {
			http.Error(w, "missing flavor", http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/computeMetadata/v1/project/numeric-project-id":
			_, _ = w.Write([]byte("1234"))
		case "/computeMetadata/v1/project/project-id":
			_, _ = w.Write([]byte("demo-project\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	source := NewMetadataAudience(srv.URL, srv.Client())
	aud, err := source.Audience(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAudience, aud)

	aud, err = source.Audience(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testAudience, aud)
	assert.Equal(t, int32(2), hits.Load())
}

func TestMetadataAudienceFailureNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("42"))
	}))
	defer srv.Close()

	source := NewMetadataAudience(srv.URL, srv.Client())
	_, err := source.Audience(context.Background())
	assert.ErrorIs(t, err, ErrMetadataUnavailable)

	fail.Store(false)
	aud, err := source.Audience(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/projects/42/apps/42", aud)
}
