// Package docsite serves a directory of markdown documentation with
// interactive pan/zoom diagram widgets.
//
// Regenerate the syntax highlighting stylesheet using:
//
//	go generate
package docsite

//go:generate go run ./tools/generate-chroma-css --out static/css/chroma.css
