// Package application provides application initialization and dependency wiring.
// It builds the signing resolver, variant planner, snapshot store, HTTP router
// and server from a config.Config, keeping the main package focused on CLI
// parsing and orchestration.
package application
