//go:build tools

// Package tools pins the goose CLI so migrations under
// internal/adapters/postgres/migrations can be run by hand against the
// same goose version the server embeds.
package tools

import (
	_ "github.com/pressly/goose/v3/cmd/goose"
)
