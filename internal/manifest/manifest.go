// Package manifest produces a secret-free report of resolved variants and signs
// it with an OpenPGP detached signature so CI can prove which identity signed
// which variant.
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/izoe/variant-signer/internal/signing"
	"github.com/izoe/variant-signer/internal/variant"
)

// Entry describes one variant without any password material.
type Entry struct {
	Name          string            `yaml:"name" json:"name"`
	Flavor        string            `yaml:"flavor" json:"flavor"`
	BuildType     variant.BuildType `yaml:"build_type" json:"buildType"`
	ApplicationID string            `yaml:"application_id" json:"applicationId"`
	VersionCode   int               `yaml:"version_code" json:"versionCode"`
	VersionName   string            `yaml:"version_name" json:"versionName"`
	DisplayName   string            `yaml:"display_name" json:"displayName"`
	Identity      string            `yaml:"signing_identity" json:"signingIdentity"`
	KeyAlias      string            `yaml:"key_alias" json:"keyAlias"`
	StoreFile     string            `yaml:"store_file" json:"storeFile"`
	StoreSHA256   string            `yaml:"store_sha256" json:"storeSha256"`
	OutputFile    string            `yaml:"output_file" json:"outputFile"`
}

// Manifest is the report for one resolution pass.
type Manifest struct {
	GeneratedAt time.Time       `yaml:"generated_at" json:"generatedAt"`
	App         variant.AppInfo `yaml:"app" json:"app"`
	Variants    []Entry         `yaml:"variants" json:"variants"`
}

// Build fingerprints every key store and creates a manifest.
func Build(app variant.AppInfo, variants []variant.Variant, root string, now time.Time) (Manifest, error) {
	sums, err := Fingerprints(variants)
	if err != nil {
		return Manifest{}, err
	}
	return Assemble(app, variants, root, now, sums), nil
}

// Fingerprints hashes each distinct key store used by variants, keyed by the
// store file path.
func Fingerprints(variants []variant.Variant) (map[string]string, error) {
	sums := make(map[string]string)
	for _, v := range variants {
		store := v.Credential.StoreFile
		if _, ok := sums[store]; ok {
			continue
		}
		sum, err := signing.Fingerprint(v.Credential)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", v.Name, err)
		}
		sums[store] = sum
	}
	return sums, nil
}

// Assemble creates a manifest from fingerprints computed earlier. Store file
// paths are written relative to root when they live inside it.
func Assemble(app variant.AppInfo, variants []variant.Variant, root string, now time.Time, sums map[string]string) Manifest {
	m := Manifest{
		GeneratedAt: now.UTC(),
		App:         app,
		Variants:    make([]Entry, 0, len(variants)),
	}

	for _, v := range variants {
		store := v.Credential.StoreFile
		m.Variants = append(m.Variants, Entry{
			Name:          v.Name,
			Flavor:        v.Flavor.Name,
			BuildType:     v.BuildType.Name,
			ApplicationID: v.ApplicationID,
			VersionCode:   v.VersionCode,
			VersionName:   v.VersionName,
			DisplayName:   v.DisplayName(),
			Identity:      v.SigningIdentity,
			KeyAlias:      v.Credential.KeyAlias,
			StoreFile:     relPath(root, store),
			StoreSHA256:   sums[store],
			OutputFile:    v.OutputFile,
		})
	}

	return m
}

// Encode renders the manifest as YAML.
func Encode(m Manifest) ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// Decode parses a YAML manifest.
func Decode(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

func relPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
