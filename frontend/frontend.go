//go:generate go run ../cmd/drive-web build --project ../drive-web.yaml

// Package frontend embeds the built web application.
package frontend

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var embedded embed.FS

// Dist is the build output, rooted at dist/.
func Dist() fs.FS {
	f, err := fs.Sub(embedded, "dist")
	if err != nil {
		panic(err)
	}
	return f
}
