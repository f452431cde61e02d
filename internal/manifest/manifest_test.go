package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/izoe/variant-signer/internal/signing"
	"github.com/izoe/variant-signer/internal/variant"
)

func testVariants(t *testing.T, root string) []variant.Variant {
	t.Helper()

	debugStore := filepath.Join(root, "keys", "debug.keystore")
	devStore := filepath.Join(root, "keys", "dev.jks")
	for _, store := range []string{debugStore, devStore} {
		if err := os.MkdirAll(filepath.Dir(store), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(store, []byte(filepath.Base(store)), 0o600); err != nil {
			t.Fatalf("write store: %v", err)
		}
	}

	flavor := variant.DefaultCatalog().Flavors[0]
	return []variant.Variant{
		{
			Name:            "devDebug",
			Flavor:          flavor,
			BuildType:       variant.BuildTypeConfig{Name: variant.BuildTypeDebug, Debuggable: true},
			ApplicationID:   "com.izoe.pos_manager.dev",
			VersionCode:     1,
			VersionName:     "1.0.0-dev",
			Resources:       []variant.ResourceValue{{Type: "string", Name: "app_name", Value: "Pos Manager Dev"}},
			SigningIdentity: "debug",
			Credential: signing.Credential{
				Identity: "debug", KeyAlias: "androiddebugkey", KeyPassword: "android-pass",
				StoreFile: debugStore, StorePassword: "android-store",
			},
			OutputFile: "app-dev-debug.apk",
		},
		{
			Name:            "devRelease",
			Flavor:          flavor,
			BuildType:       variant.BuildTypeConfig{Name: variant.BuildTypeRelease, MinifyEnabled: true},
			ApplicationID:   "com.izoe.pos_manager.dev",
			VersionCode:     1,
			VersionName:     "1.0.0-dev",
			Resources:       []variant.ResourceValue{{Type: "string", Name: "app_name", Value: "Pos Manager Dev"}},
			SigningIdentity: "devRelease",
			Credential: signing.Credential{
				Identity: "devRelease", KeyAlias: "upload", KeyPassword: "dev-key-pass",
				StoreFile: devStore, StorePassword: "dev-store-pass",
			},
			OutputFile: "app-dev-release.apk",
		},
	}
}

func TestBuildManifest(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	now := time.Date(2026, 10, 19, 8, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	m, err := Build(variant.DefaultCatalog().App, testVariants(t, root), root, now)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if !m.GeneratedAt.Equal(now) || m.GeneratedAt.Location() != time.UTC {
		t.Fatalf("expected UTC generation time, got %s", m.GeneratedAt)
	}
	if len(m.Variants) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m.Variants))
	}

	release := m.Variants[1]
	if release.StoreFile != "keys/dev.jks" {
		t.Fatalf("expected relative store path, got %s", release.StoreFile)
	}
	if release.DisplayName != "Pos Manager Dev" || release.KeyAlias != "upload" || release.Identity != "devRelease" {
		t.Fatalf("unexpected entry %+v", release)
	}
	if len(release.StoreSHA256) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", release.StoreSHA256)
	}
	if m.Variants[0].StoreSHA256 == release.StoreSHA256 {
		t.Fatalf("different key stores should have different digests")
	}
}

func TestEncodedManifestHasNoSecrets(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m, err := Build(variant.DefaultCatalog().App, testVariants(t, root), root, time.Now())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	for _, secret := range []string{"android-pass", "android-store", "dev-key-pass", "dev-store-pass"} {
		if bytes.Contains(data, []byte(secret)) {
			t.Fatalf("manifest leaked %s:\n%s", secret, data)
		}
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(decoded.Variants) != 2 || decoded.Variants[1].ApplicationID != "com.izoe.pos_manager.dev" {
		t.Fatalf("unexpected decoded manifest %+v", decoded)
	}
}

func TestBuildFailsForMissingKeyStore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	variants := testVariants(t, root)
	variants[1].Credential.StoreFile = filepath.Join(root, "gone.jks")

	if _, err := Build(variant.AppInfo{}, variants, root, time.Now()); err == nil || !strings.Contains(err.Error(), "devRelease") {
		t.Fatalf("expected error naming devRelease, got %v", err)
	}
}

func TestAssembleUsesGivenFingerprints(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	variants := testVariants(t, root)
	sums, err := Fingerprints(variants)
	if err != nil {
		t.Fatalf("Fingerprints returned error: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected one digest per key store, got %d", len(sums))
	}
	if err := os.Remove(variants[1].Credential.StoreFile); err != nil {
		t.Fatalf("remove: %v", err)
	}

	m := Assemble(variant.AppInfo{}, variants, root, time.Now(), sums)
	if got, want := m.Variants[1].StoreSHA256, sums[variants[1].Credential.StoreFile]; got != want {
		t.Fatalf("expected digest %s, got %s", want, got)
	}
}
