package signing

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentialFile is returned when a properties file does not exist.
	ErrMissingCredentialFile = errors.New("credential file not found")
	// ErrMissingCredentialField is returned when a required property is absent or blank.
	ErrMissingCredentialField = errors.New("credential field missing")
	// ErrMissingKeyStore is returned when the configured store file does not exist.
	ErrMissingKeyStore = errors.New("key store not found")
)

// MissingCredentialFileError reports the properties file that could not be read.
type MissingCredentialFileError struct {
	Identity string
	Path     string
	Err      error
}

func (e *MissingCredentialFileError) Error() string {
	return fmt.Sprintf("signing identity %q: credential file %s not found", e.Identity, e.Path)
}

func (e *MissingCredentialFileError) Is(target error) bool {
	return target == ErrMissingCredentialFile
}

func (e *MissingCredentialFileError) Unwrap() error {
	return e.Err
}

// MissingCredentialFieldError names the required property absent from an
// otherwise readable properties file.
type MissingCredentialFieldError struct {
	Identity string
	Path     string
	Field    string
}

func (e *MissingCredentialFieldError) Error() string {
	return fmt.Sprintf("signing identity %q: field %s missing from %s", e.Identity, e.Field, e.Path)
}

func (e *MissingCredentialFieldError) Is(target error) bool {
	return target == ErrMissingCredentialField
}

// MissingKeyStoreError reports a store file that the properties point at but
// which does not exist on disk.
type MissingKeyStoreError struct {
	Identity string
	Path     string
}

func (e *MissingKeyStoreError) Error() string {
	return fmt.Sprintf("signing identity %q: key store %s not found", e.Identity, e.Path)
}

func (e *MissingKeyStoreError) Is(target error) bool {
	return target == ErrMissingKeyStore
}
