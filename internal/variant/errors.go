package variant

import "errors"

var (
	// ErrInvalidCatalog is returned when flavors, build types or identities are inconsistent.
	ErrInvalidCatalog = errors.New("invalid variant catalog")
	// ErrUnknownFlavor is returned when a requested flavor is not declared.
	ErrUnknownFlavor = errors.New("unknown flavor")
	// ErrUnknownBuildType is returned when a requested build type is not declared.
	ErrUnknownBuildType = errors.New("unknown build type")
	// ErrSharedKeyStore is returned when two release identities point at the same key store.
	ErrSharedKeyStore = errors.New("release identities share a key store")
)
