package dashboard

import (
	"embed"
	"io/fs"
)

//go:embed all:static
var bundled embed.FS

// staticFS is the embedded dashboard filesystem rooted at static/.
var staticFS fs.FS = bundled
