package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/izoe/variant-signer/internal/manifest"
	"github.com/izoe/variant-signer/internal/signing"
	"github.com/izoe/variant-signer/internal/storage"
	"github.com/izoe/variant-signer/internal/variant"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeReloader struct {
	store    *storage.MemoryStore
	variants []variant.Variant
	err      error
	clock    func() time.Time
}

func (f *fakeReloader) Reload() (storage.Snapshot, error) {
	if f.err != nil {
		return storage.Snapshot{}, f.err
	}
	sums, err := manifest.Fingerprints(f.variants)
	if err != nil {
		return storage.Snapshot{}, err
	}
	if err := f.store.Replace(f.variants, sums, f.clock()); err != nil {
		return storage.Snapshot{}, err
	}
	snap, _ := f.store.Snapshot()
	return snap, nil
}

func fixtureVariants(t *testing.T, root string) []variant.Variant {
	t.Helper()

	catalog := variant.DefaultCatalog()
	var out []variant.Variant
	for _, f := range catalog.Flavors {
		for _, bt := range catalog.BuildTypes {
			identity := catalog.IdentityFor(f, bt)
			store := filepath.Join(root, "keys", identity+".jks")
			if err := os.MkdirAll(filepath.Dir(store), 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.WriteFile(store, []byte(identity), 0o600); err != nil {
				t.Fatalf("write store: %v", err)
			}
			out = append(out, variant.Variant{
				Name:            variant.VariantName(f.Name, bt.Name),
				Flavor:          f,
				BuildType:       bt,
				ApplicationID:   catalog.App.BundleID + f.ApplicationIDSuffix,
				VersionCode:     f.VersionCode,
				VersionName:     f.VersionName + f.VersionNameSuffix,
				Resources:       []variant.ResourceValue{{Type: "string", Name: "app_name", Value: f.DisplayName}},
				SigningIdentity: identity,
				Credential: signing.Credential{
					Identity:      identity,
					KeyAlias:      identity + "-alias",
					KeyPassword:   "kp-secret",
					StoreFile:     store,
					StorePassword: "sp-secret",
				},
				OutputFile: variant.OutputFileName(f.Name, bt.Name),
			})
		}
	}
	return out
}

type testEnv struct {
	router   http.Handler
	clock    *controllableClock
	store    *storage.MemoryStore
	reloader *fakeReloader
}

func setupTestRouter(t *testing.T, preload bool, opts ...RouterOption) testEnv {
	t.Helper()

	root := t.TempDir()
	store := storage.NewMemoryStore()
	clock := newControllableClock(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	reloader := &fakeReloader{store: store, variants: fixtureVariants(t, root), clock: clock.Now}
	if preload {
		if _, err := reloader.Reload(); err != nil {
			t.Fatalf("preload: %v", err)
		}
	}

	handler := NewHandler(store, reloader, variant.DefaultCatalog().App, root, WithClock(clock.Now))
	logger := zaptest.NewLogger(t)
	opts = append([]RouterOption{WithLogging(false)}, opts...)
	router := NewRouter(handler, logger, opts...)

	return testEnv{router: router, clock: clock, store: store, reloader: reloader}
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	env := setupTestRouter(t, true)

	rec := serve(env.router, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
		Variants  int       `json:"variants"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" || body.Variants != 6 {
		t.Fatalf("unexpected health body %+v", body)
	}
	if !body.Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", env.clock.Now(), body.Timestamp)
	}
}

func TestHealthUnavailableBeforeResolution(t *testing.T) {
	env := setupTestRouter(t, false)

	if rec := serve(env.router, http.MethodGet, "/api/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if rec := serve(env.router, http.MethodGet, "/api/variants"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}

func TestListVariants(t *testing.T) {
	env := setupTestRouter(t, true)

	rec := serve(env.router, http.MethodGet, "/api/variants")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	raw := rec.Body.String()
	if strings.Contains(raw, "kp-secret") || strings.Contains(raw, "sp-secret") {
		t.Fatalf("response leaked secrets: %s", raw)
	}

	var body struct {
		GeneratedAt time.Time `json:"generatedAt"`
		App         struct {
			BundleID string `json:"bundleId"`
		} `json:"app"`
		Variants []struct {
			Name          string `json:"name"`
			ApplicationID string `json:"applicationId"`
			StoreFile     string `json:"storeFile"`
			StoreSHA256   string `json:"storeSha256"`
		} `json:"variants"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.App.BundleID != "com.izoe.pos_manager" {
		t.Fatalf("unexpected bundle id %s", body.App.BundleID)
	}
	if len(body.Variants) != 6 {
		t.Fatalf("expected 6 variants, got %d", len(body.Variants))
	}
	if body.Variants[5].Name != "prodRelease" || body.Variants[5].ApplicationID != "com.izoe.pos_manager.win" {
		t.Fatalf("unexpected last variant %+v", body.Variants[5])
	}
	if body.Variants[5].StoreFile != "keys/prodRelease.jks" || body.Variants[5].StoreSHA256 == "" {
		t.Fatalf("unexpected store info %+v", body.Variants[5])
	}
	if !body.GeneratedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected resolution time %s, got %s", env.clock.Now(), body.GeneratedAt)
	}
}

func TestGetVariant(t *testing.T) {
	env := setupTestRouter(t, true)

	rec := serve(env.router, http.MethodGet, "/api/variants/preliveRelease")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Name        string `json:"name"`
		VersionName string `json:"versionName"`
		Identity    string `json:"signingIdentity"`
		KeyAlias    string `json:"keyAlias"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Name != "preliveRelease" || body.VersionName != "1.0.0-prelive" ||
		body.Identity != "preliveRelease" || body.KeyAlias != "preliveRelease-alias" {
		t.Fatalf("unexpected variant %+v", body)
	}
}

func TestGetVariantNotFound(t *testing.T) {
	env := setupTestRouter(t, true)

	if rec := serve(env.router, http.MethodGet, "/api/variants/stagingRelease"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestReloadReplacesSnapshot(t *testing.T) {
	env := setupTestRouter(t, false)
	env.clock.Advance(time.Hour)

	rec := serve(env.router, http.MethodPost, "/api/variants/reload")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Variants   int       `json:"variants"`
		ResolvedAt time.Time `json:"resolvedAt"`
		Message    string    `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Variants != 6 || body.Message == "" || !body.ResolvedAt.Equal(env.clock.Now()) {
		t.Fatalf("unexpected reload body %+v", body)
	}
}

func TestReloadFailureKeepsPreviousSnapshot(t *testing.T) {
	env := setupTestRouter(t, true)
	env.reloader.err = &signing.MissingCredentialFieldError{Identity: "prodRelease", Field: signing.FieldKeyAlias}

	rec := serve(env.router, http.MethodPost, "/api/variants/reload")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "keyAlias") {
		t.Fatalf("expected error to name keyAlias: %s", rec.Body.String())
	}

	if _, err := env.store.Variant("prodRelease"); err != nil {
		t.Fatalf("previous snapshot lost: %v", err)
	}
}

func TestReloadWithoutReloader(t *testing.T) {
	handler := NewHandler(storage.NewMemoryStore(), nil, variant.AppInfo{}, "")
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false))

	if rec := serve(router, http.MethodPost, "/api/variants/reload"); rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected status 501, got %d", rec.Code)
	}
}

func TestViewsUseFingerprintsFromResolution(t *testing.T) {
	env := setupTestRouter(t, true)
	snap, _ := env.store.Snapshot()
	v, err := snap.Find("devRelease")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	want := snap.Fingerprints[v.Credential.StoreFile]
	if want == "" {
		t.Fatalf("expected fingerprint for %s", v.Credential.StoreFile)
	}
	if err := os.Remove(v.Credential.StoreFile); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if rec := serve(env.router, http.MethodGet, "/api/variants"); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec := serve(env.router, http.MethodGet, "/api/variants/devRelease")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body struct {
		StoreSHA256 string `json:"storeSha256"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.StoreSHA256 != want {
		t.Fatalf("expected fingerprint %s, got %s", want, body.StoreSHA256)
	}
}

func TestReloadFailsWhenKeyStoreDisappears(t *testing.T) {
	env := setupTestRouter(t, true)
	v, err := env.store.Variant("devRelease")
	if err != nil {
		t.Fatalf("Variant returned error: %v", err)
	}
	if err := os.Remove(v.Credential.StoreFile); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if rec := serve(env.router, http.MethodPost, "/api/variants/reload"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	if rec := serve(env.router, http.MethodGet, "/api/variants"); rec.Code != http.StatusOK {
		t.Fatalf("expected previous snapshot to stay served, got %d", rec.Code)
	}
}
