package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
)

const armoredSignaturePrefix = "-----BEGIN PGP SIGNATURE"

// maxSignatureSize bounds detached signatures read from disk.
const maxSignatureSize = 64 * 1024

// SignatureSuffix is appended to the manifest path for its detached signature.
const SignatureSuffix = ".asc"

// Signer creates armored detached signatures with an OpenPGP private key.
type Signer struct {
	entity *openpgp.Entity
}

// NewSigner wraps an entity whose private key is already decrypted.
func NewSigner(entity *openpgp.Entity) (*Signer, error) {
	if entity == nil || entity.PrivateKey == nil {
		return nil, errors.New("signing entity has no private key")
	}
	if entity.PrivateKey.Encrypted {
		return nil, errors.New("signing key is encrypted")
	}
	return &Signer{entity: entity}, nil
}

// LoadSigner reads an armored or binary private key from path and decrypts it
// with passphrase when needed.
func LoadSigner(path string, passphrase []byte) (*Signer, error) {
	entities, err := readEntities(path)
	if err != nil {
		return nil, err
	}

	for _, entity := range entities {
		if entity.PrivateKey == nil {
			continue
		}
		if entity.PrivateKey.Encrypted {
			if len(passphrase) == 0 {
				return nil, errors.New("signing key is encrypted and no passphrase was provided")
			}
			if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
				return nil, fmt.Errorf("decrypt signing key: %w", err)
			}
		}
		for _, sub := range entity.Subkeys {
			if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
				if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
					return nil, fmt.Errorf("decrypt signing subkey: %w", err)
				}
			}
		}
		return NewSigner(entity)
	}

	return nil, fmt.Errorf("no private key found in %s", path)
}

// Fingerprint returns the upper-case hex fingerprint of the signing key.
func (s *Signer) Fingerprint() string {
	return fmt.Sprintf("%X", s.entity.PrimaryKey.Fingerprint)
}

// Sign writes an armored detached signature of message to w.
func (s *Signer) Sign(w io.Writer, message io.Reader) error {
	if err := openpgp.ArmoredDetachSign(w, s.entity, message, nil); err != nil {
		return fmt.Errorf("sign manifest: %w", err)
	}
	return nil
}

// LoadKeyring reads armored or binary public keys from path.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	return readEntities(path)
}

// Verify checks a detached signature, armored or binary, over message and
// returns the signing entity.
func Verify(keyring openpgp.EntityList, message, signature io.Reader) (*openpgp.Entity, error) {
	if len(keyring) == 0 {
		return nil, errors.New("keyring is empty")
	}

	sig, err := io.ReadAll(io.LimitReader(signature, maxSignatureSize))
	if err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}
	if len(sig) < 10 {
		return nil, errors.New("signature too small to be valid")
	}

	var signer *openpgp.Entity
	if bytes.HasPrefix(bytes.TrimSpace(sig), []byte(armoredSignaturePrefix)) {
		signer, err = openpgp.CheckArmoredDetachedSignature(keyring, message, bytes.NewReader(sig), nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(keyring, message, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}
	return signer, nil
}

// WriteFiles writes the encoded manifest to path and, when signer is not nil,
// its detached signature to path+SignatureSuffix.
func WriteFiles(m Manifest, path string, signer *Signer) (string, error) {
	data, err := Encode(m)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if signer == nil {
		return "", nil
	}

	var sig bytes.Buffer
	if err := signer.Sign(&sig, bytes.NewReader(data)); err != nil {
		return "", err
	}
	sigPath := path + SignatureSuffix
	if err := os.WriteFile(sigPath, sig.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write signature: %w", err)
	}
	return sigPath, nil
}

// VerifyFiles verifies the manifest at manifestPath against sigPath using the
// public keys in keyringPath, then decodes it.
func VerifyFiles(keyringPath, manifestPath, sigPath string) (Manifest, *openpgp.Entity, error) {
	keyring, err := LoadKeyring(keyringPath)
	if err != nil {
		return Manifest{}, nil, err
	}

	//nolint:gosec // G304: manifest path is user-provided
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("read manifest: %w", err)
	}

	//nolint:gosec // G304: signature path is user-provided
	sigFile, err := os.Open(sigPath)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("open signature: %w", err)
	}
	//nolint:errcheck // read-only file
	defer sigFile.Close()

	signer, err := Verify(keyring, bytes.NewReader(data), sigFile)
	if err != nil {
		return Manifest{}, nil, err
	}

	m, err := Decode(data)
	if err != nil {
		return Manifest{}, nil, err
	}
	return m, signer, nil
}

// readEntities reads an armored key ring and falls back to the binary format.
func readEntities(path string) (openpgp.EntityList, error) {
	//nolint:gosec // G304: key path is user-provided
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no keys found in %s", path)
	}
	return entities, nil
}
