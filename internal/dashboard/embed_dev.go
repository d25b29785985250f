//go:build dev

package dashboard

import "io/fs"

// bundle stays nil under the dev tag. The handler then 404s everything,
// leaving asset serving to the frontend dev server proxy.
var bundle fs.FS
