// Package data embeds the default DevHub fixtures.
package data

import _ "embed"

// Docs is the default document collection.
//
//go:embed docs.json
var Docs []byte

// Teams is the default team and owner directory.
//
//go:embed teams.json
var Teams []byte

// Status is the default service status collection.
//
//go:embed status.json
var Status []byte
