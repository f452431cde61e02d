// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > YAML config >
// Environment variables > Defaults. The defaults describe the Pos Manager
// flavors and signing identities; a YAML file may replace flavors, build types
// and identity paths wholesale.
package config
