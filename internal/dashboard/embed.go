//go:build !dev

package dashboard

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var distDir embed.FS

// bundle holds the compiled dashboard assets baked into the binary.
var bundle fs.FS = distDir
