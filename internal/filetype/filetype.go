// Package filetype classifies workspace files by their extension.
package filetype

import (
	"path/filepath"
	"strings"
)

// Class is the coarse handler family a declared type belongs to.
type Class string

const (
	Markup     Class = "markup"
	Stylesheet Class = "stylesheet"
	Script     Class = "script"
	Raster     Class = "raster"
	Opaque     Class = "opaque"
)

// Other is the declared type of files without an extension.
const Other = "other"

var classes = map[string]Class{
	"html": Markup,
	"htm":  Markup,
	"css":  Stylesheet,
	"scss": Stylesheet,
	"sass": Stylesheet,
	"js":   Script,
	"jsx":  Script,
	"ts":   Script,
	"tsx":  Script,
	"png":  Raster,
	"jpg":  Raster,
	"jpeg": Raster,
	"gif":  Raster,
}

// Binary types are never read as text nor sent to the transformer service.
var binary = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
	"ico":  true,
	"svg":  true,
}

// Of returns the declared type of a path: its lowercase extension without the dot.
func Of(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return Other
	}
	return ext
}

// Classify maps a declared type to its handler class.
func Classify(declared string) Class {
	if c, ok := classes[declared]; ok {
		return c
	}
	return Opaque
}

// IsBinary reports whether the declared type is skipped during analysis.
func IsBinary(declared string) bool {
	return binary[declared]
}

// IsPreprocessed reports whether a stylesheet type must be compiled to css first.
func IsPreprocessed(declared string) bool {
	return declared == "scss" || declared == "sass"
}
