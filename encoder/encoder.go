package encoder

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sort"
	"time"

	"transmute/config"
	"transmute/failures"
	"transmute/logger"
)

// Op names one transcode operation.
type Op string

const (
	OpSVGRasterize      Op = "svg-rasterize"
	OpImageToPDF        Op = "image-to-pdf"
	OpImageEncode       Op = "image-encode"
	OpAudioEncode       Op = "audio-encode"
	OpVideoWebM         Op = "video-webm"
	OpVideoGIF          Op = "video-gif"
	OpVideoExtractAudio Op = "video-extract-audio"
	OpVideoTranscode    Op = "video-transcode"
	OpVideoEncode       Op = "video-encode"
	OpPDFToDOCX         Op = "pdf-to-docx"
	OpPDFRasterize      Op = "pdf-rasterize"
	OpPDFCompress       Op = "pdf-compress"
	OpCSVToPDF          Op = "csv-to-pdf"
	OpCSVToXLSX         Op = "csv-to-xlsx"
	OpTextToPDF         Op = "text-to-pdf"
	OpOfficeToPDF       Op = "office-to-pdf"
	OpCopy              Op = "copy"
	OpZstd              Op = "zstd"
	OpBrotli            Op = "brotli"
)

// Params carries every knob any backend reads. Backends ignore the rest.
type Params struct {
	Format       string // output format, no dot
	Quality      int    // image quality
	Bitrate      string // audio bitrate
	CRF          int
	Preset       string
	AudioBitrate string // audio track of a video
	DPI          int
	Level        int // zstd level or brotli quality
	AllPages     bool
	FPS          int
	Width        int
}

// EncodeFunc writes a transcoded copy of input. output is the planned path;
// the returned path is what was actually written, which differs when a
// backend must choose the extension itself (a zip of pages, for example).
type EncodeFunc func(ctx context.Context, input, output string, p Params) (string, error)

// Availability describes one registered or skipped operation.
type Availability struct {
	Op        Op     `json:"op"`
	Tool      string `json:"tool"`
	Available bool   `json:"available"`
}

// Registry maps operations to encoder functions.
type Registry struct {
	funcs    map[Op]EncodeFunc
	tools    map[Op]string
	lookPath func(string) (string, error)
}

func NewRegistry(lookPath func(string) (string, error)) *Registry {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	return &Registry{
		funcs:    map[Op]EncodeFunc{},
		tools:    map[Op]string{},
		lookPath: lookPath,
	}
}

// Register adds an encoder if the underlying command exists, logs status.
// An empty cmdName means the encoder needs no external command.
func (r *Registry) Register(op Op, cmdName string, fn EncodeFunc) {
	r.tools[op] = cmdName
	if cmdName != "" {
		if _, err := r.lookPath(cmdName); err != nil {
			logger.Warnf("encoder [%s] skipped: command '%s' not found in PATH", op, cmdName)
			return
		}
	}
	r.funcs[op] = fn
	if cmdName == "" {
		logger.Debugf("encoder [%s] registered (no command required)", op)
	} else {
		logger.Debugf("encoder [%s] registered (command: %s)", op, cmdName)
	}
}

// Get looks up an encoder by operation.
func (r *Registry) Get(op Op) (EncodeFunc, bool) {
	fn, ok := r.funcs[op]
	return fn, ok
}

// Encode dispatches op. Missing operations fail with tool-not-found.
func (r *Registry) Encode(ctx context.Context, op Op, input, output string, p Params) (string, error) {
	fn, ok := r.funcs[op]
	if !ok {
		if tool, known := r.tools[op]; known && tool != "" {
			return "", failures.Errorf(failures.KindToolNotFound, string(op), "command %q not found", tool)
		}
		return "", failures.Errorf(failures.KindToolNotFound, string(op), "no encoder registered")
	}
	return fn(ctx, input, output, p)
}

// Report lists every operation that was offered for registration.
func (r *Registry) Report() []Availability {
	out := make([]Availability, 0, len(r.tools))
	for op, tool := range r.tools {
		_, ok := r.funcs[op]
		out = append(out, Availability{Op: op, Tool: tool, Available: ok})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Op < out[j].Op })
	return out
}

// Options configures New.
type Options struct {
	Tools         config.Tools
	Runner        Runner
	LookPath      func(string) (string, error)
	GotenbergURL  string
	OfficeTimeout time.Duration
	HTTPClient    *http.Client
}

// OptionsFromConfig derives encoder options from the service configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Tools:         cfg.Tools,
		GotenbergURL:  cfg.GotenbergURL,
		OfficeTimeout: cfg.OfficeTimeout,
	}
}

// New builds a registry with every backend whose dependencies are present.
func New(o Options) *Registry {
	if o.Runner == nil {
		o.Runner = ExecRunner{}
	}
	if o.OfficeTimeout <= 0 {
		o.OfficeTimeout = 120 * time.Second
	}
	b := &backends{run: o.Runner, tools: o.Tools}
	if o.GotenbergURL != "" {
		b.office = NewGotenberg(o.GotenbergURL, o.HTTPClient)
	} else {
		b.office = &sofficeConverter{run: o.Runner, bin: o.Tools.Soffice}
	}
	b.officeTimeout = o.OfficeTimeout

	r := NewRegistry(o.LookPath)
	r.Register(OpImageEncode, o.Tools.Magick, b.imageEncode)
	r.Register(OpImageToPDF, o.Tools.Magick, b.imageToPDF)
	r.Register(OpSVGRasterize, o.Tools.Rsvg, b.svgRasterize)

	r.Register(OpAudioEncode, o.Tools.FFmpeg, b.audioEncode)
	r.Register(OpVideoEncode, o.Tools.FFmpeg, b.videoEncode)
	r.Register(OpVideoTranscode, o.Tools.FFmpeg, b.videoEncode)
	r.Register(OpVideoWebM, o.Tools.FFmpeg, b.videoWebM)
	r.Register(OpVideoGIF, o.Tools.FFmpeg, b.videoGIF)
	r.Register(OpVideoExtractAudio, o.Tools.FFmpeg, b.extractAudio)

	r.Register(OpPDFCompress, o.Tools.GS, b.pdfCompress)
	r.Register(OpPDFRasterize, o.Tools.PDFToPPM, b.pdfRasterize)
	r.Register(OpPDFToDOCX, o.Tools.Soffice, b.pdfToDOCX)
	if o.GotenbergURL != "" {
		r.Register(OpOfficeToPDF, "", b.officeToPDF)
	} else {
		r.Register(OpOfficeToPDF, o.Tools.Soffice, b.officeToPDF)
	}

	r.Register(OpCSVToXLSX, "", csvToXLSX)
	r.Register(OpCSVToPDF, "", csvToPDF)
	r.Register(OpTextToPDF, "", textToPDF)
	r.Register(OpZstd, "", encodeZstd)
	r.Register(OpBrotli, "", encodeBrotli)
	r.Register(OpCopy, "", EncodeCopy)
	return r
}

// backends holds what the command-line encoders share.
type backends struct {
	run           Runner
	tools         config.Tools
	office        OfficeConverter
	officeTimeout time.Duration
}

func ioErr(op string, err error) error {
	return failures.New(failures.KindIO, op, err)
}

func wrapf(kind failures.Kind, op, format string, args ...any) error {
	return failures.New(kind, op, fmt.Errorf(format, args...))
}
