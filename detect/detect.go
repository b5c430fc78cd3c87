// Package detect classifies uploaded files into coarse media classes.
//
// The extension decides first; a MIME guess from the file name is only
// consulted for extensions none of the allow-lists know.
package detect

import (
	"mime"
	"path/filepath"
	"strings"
)

type Class string

const (
	Image   Class = "image"
	Audio   Class = "audio"
	Video   Class = "video"
	PDF     Class = "pdf"
	Archive Class = "archive"
	Text    Class = "text"
	Binary  Class = "binary"
)

// Set is an immutable set of lower-case extensions without the dot.
type Set map[string]struct{}

func NewSet(exts ...string) Set {
	s := make(Set, len(exts))
	for _, e := range exts {
		s[e] = struct{}{}
	}
	return s
}

func (s Set) Has(ext string) bool {
	_, ok := s[ext]
	return ok
}

// Tables holds the per-class extension allow-lists, checked in Order.
type Tables struct {
	Order []Class
	Exts  map[Class]Set
}

// DefaultTables returns the allow-lists used in production.
func DefaultTables() Tables {
	return Tables{
		Order: []Class{Image, Audio, Video, PDF, Archive},
		Exts: map[Class]Set{
			Image:   NewSet("jpg", "jpeg", "png", "webp", "avif", "bmp", "heic", "heif", "tiff", "tif", "ico", "jxl"),
			Audio:   NewSet("mp3", "wav", "opus", "aac", "ogg", "flac", "m4a", "aiff", "aif", "wma", "mid", "midi"),
			Video:   NewSet("mp4", "webm", "mkv", "avi", "mov", "flv", "gif", "3gp", "3g2", "mpeg", "mpg", "ogv", "wmv"),
			PDF:     NewSet("pdf"),
			Archive: NewSet("zip", "7z", "rar", "gz", "tar", "bz2", "xz"),
		},
	}
}

// mimeHints covers extensions the host MIME database is often missing,
// so classification does not depend on /etc/mime.types being installed.
var mimeHints = map[string]string{
	".txt":      "text/plain",
	".csv":      "text/csv",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".svg":      "image/svg+xml",
	".xml":      "text/xml",
	".html":     "text/html",
	".json":     "application/json",
}

type Detector struct {
	tables Tables
}

func New(t Tables) *Detector {
	return &Detector{tables: t}
}

// Default is a Detector over DefaultTables.
var Default = New(DefaultTables())

// Ext returns the lower-case extension of path without the dot.
func Ext(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Classify maps a file name to its media class.
func (d *Detector) Classify(path string) Class {
	ext := Ext(path)
	if ext != "" {
		for _, c := range d.tables.Order {
			if d.tables.Exts[c].Has(ext) {
				return c
			}
		}
	}
	return classifyMIME(guessMIME(path))
}

// Classify uses the default tables.
func Classify(path string) Class {
	return Default.Classify(path)
}

func guessMIME(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return mimeHints[ext]
}

func classifyMIME(t string) Class {
	if t == "" {
		return Binary
	}
	if mediaType, _, err := mime.ParseMediaType(t); err == nil {
		t = mediaType
	}
	major, _, _ := strings.Cut(t, "/")
	switch {
	case major == "image":
		return Image
	case major == "audio":
		return Audio
	case major == "video":
		return Video
	case t == "application/pdf":
		return PDF
	case major == "text":
		return Text
	}
	return Binary
}
