// Package web bundles the HTML templates and static assets into the binary.
//
// Embedding means the server needs no working-directory assumptions: the
// same binary serves identical pages from any location or container.
package web

import "embed"

// FS holds templates/ and static/.
//
//go:embed templates static
var FS embed.FS
