// Package variant describes the product flavors and build types of the
// application and expands them into build variants. Each variant carries its
// application id, version, resource values and the signing credential selected
// by the identity policy: debug builds share one identity, release builds use
// the flavor's own identity.
package variant
