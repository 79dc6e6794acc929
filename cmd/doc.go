// Package cmd provides the command-line interface for reqs-builder.
//
// # Available Commands
//
//   - generate: run the pipeline once and exit non-zero on failure
//   - dev: regenerate on change, serve a live preview, push reload messages
//   - config: print the effective configuration; config validate checks it
//   - version: print build metadata
//
// # Command Examples
//
//	// One-shot build with the defaults
//	reqs-builder generate
//
//	// Override directories for a single run
//	reqs-builder generate --source ./data --out ./site/content
//
//	// Watch without the hugo preview
//	reqs-builder dev --no-preview
//
//	// Inspect the configuration as JSON
//	reqs-builder config --format json
package cmd
