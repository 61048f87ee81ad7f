// Package web embeds the HTML templates and static assets, so the server
// binary runs from any working directory.
package web

import "embed"

//go:embed templates static
var FS embed.FS
