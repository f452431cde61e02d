// Package signing loads signing credentials from Java properties files. Each
// signing identity (the shared debug key, one release key per flavor) is backed
// by one properties file carrying keyAlias, keyPassword, storeFile and
// storePassword. Every failure is fatal: a missing file, a missing field or a
// missing key store aborts resolution and nothing is defaulted.
package signing
