package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magiconair/properties"
)

// Resolver reads credential files relative to a project root.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver rooted at the given project directory.
func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// Root returns the project root used to resolve relative paths.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve loads the credential for identity from the properties file at
// propertiesPath. Relative paths, including the storeFile value, are resolved
// against the project root.
func (r *Resolver) Resolve(identity, propertiesPath string) (Credential, error) {
	path := r.abs(propertiesPath)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credential{}, &MissingCredentialFileError{Identity: identity, Path: path, Err: err}
		}
		return Credential{}, fmt.Errorf("signing identity %q: stat %s: %w", identity, path, err)
	}
	if info.IsDir() {
		return Credential{}, &MissingCredentialFileError{Identity: identity, Path: path}
	}

	// Java reads properties as ISO-8859-1; expansion stays off so passwords
	// containing "${" are taken literally.
	loader := &properties.Loader{Encoding: properties.ISO_8859_1, DisableExpansion: true}
	props, err := loader.LoadFile(path)
	if err != nil {
		return Credential{}, fmt.Errorf("signing identity %q: parse %s: %w", identity, path, err)
	}

	values := make(map[string]string, len(RequiredFields))
	for _, field := range RequiredFields {
		value, ok := props.Get(field)
		if !ok || strings.TrimSpace(value) == "" {
			return Credential{}, &MissingCredentialFieldError{Identity: identity, Path: path, Field: field}
		}
		values[field] = value
	}

	storeFile := r.abs(strings.TrimSpace(values[FieldStoreFile]))
	if _, err := os.Stat(storeFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credential{}, &MissingKeyStoreError{Identity: identity, Path: storeFile}
		}
		return Credential{}, fmt.Errorf("signing identity %q: stat key store: %w", identity, err)
	}

	return Credential{
		Identity:      identity,
		KeyAlias:      values[FieldKeyAlias],
		KeyPassword:   Secret(values[FieldKeyPassword]),
		StoreFile:     storeFile,
		StorePassword: Secret(values[FieldStorePassword]),
		Source:        path,
	}, nil
}

// Rel returns path relative to the project root when it lies inside it.
func (r *Resolver) Rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func (r *Resolver) abs(path string) string {
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.root, path)
}

// Fingerprint returns the hex SHA-256 digest of the credential's key store.
func Fingerprint(c Credential) (string, error) {
	f, err := os.Open(c.StoreFile)
	if err != nil {
		return "", fmt.Errorf("open key store: %w", err)
	}
	//nolint:errcheck // read-only file
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash key store: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
