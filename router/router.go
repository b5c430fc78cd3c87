// Package router decides which transcode operation serves a job.
//
// Convert walks an ordered rule list and the first match wins. Compress is
// a per-class table driven by the target percent. Both are pure.
package router

import (
	"transmute/detect"
	"transmute/encoder"
	"transmute/failures"
	"transmute/params"
)

// Route is a planned operation and the extension, with the dot, its
// output should carry.
type Route struct {
	Op     encoder.Op
	Ext    string
	Params encoder.Params
}

// Request is what the convert rules look at.
type Request struct {
	Class  detect.Class
	Ext    string // source extension, lower case, no dot
	Format string // requested format, lower case, no dot; empty means auto
}

type rule struct {
	name  string
	match func(Request) bool
	plan  func(Request) Route
}

var (
	imageTargets     = detect.NewSet("jpg", "jpeg", "png", "webp", "avif")
	audioTargets     = detect.NewSet("mp3", "wav", "opus", "aac", "ogg", "flac")
	extractTargets   = detect.NewSet("mp3", "aac", "wav", "ogg", "flac", "opus")
	transcodeTargets = detect.NewSet("mp4", "mkv", "avi", "mov")
	rasterTargets    = detect.NewSet("png", "jpg", "jpeg", "webp")
	textSources      = detect.NewSet("txt", "md", "markdown", "json", "xml")
	ebookSources     = detect.NewSet("epub", "rtf")
	officeSources    = detect.NewSet("docx", "doc", "pptx", "ppt", "xlsx", "xls")
)

// Video convert settings.
const (
	transcodeCRF    = 23
	webmCRF         = 32
	convertPreset   = "veryfast"
	convertAudioBit = "128k"
	gifFPS          = 10
	gifWidth        = 480
)

func or(format, fallback string) string {
	if format == "" {
		return fallback
	}
	return format
}

func route(op encoder.Op, format string, p encoder.Params) Route {
	p.Format = format
	return Route{Op: op, Ext: "." + format, Params: p}
}

func class(c detect.Class) func(Request) bool {
	return func(r Request) bool { return r.Class == c }
}

func classAndFormat(c detect.Class, formats detect.Set) func(Request) bool {
	return func(r Request) bool { return r.Class == c && formats.Has(r.Format) }
}

// convertRules is the convert decision table, in priority order.
var convertRules = []rule{
	{
		name:  "svg",
		match: func(r Request) bool { return r.Class == detect.Image && r.Ext == "svg" },
		plan:  func(Request) Route { return route(encoder.OpSVGRasterize, "png", encoder.Params{}) },
	},
	{
		name:  "image-pdf",
		match: func(r Request) bool { return r.Class == detect.Image && r.Format == "pdf" },
		plan: func(Request) Route {
			return route(encoder.OpImageToPDF, "pdf", encoder.Params{Quality: params.ConvertImageQuality})
		},
	},
	{
		name:  "image",
		match: func(r Request) bool { return r.Class == detect.Image && (r.Format == "" || imageTargets.Has(r.Format)) },
		plan: func(r Request) Route {
			return route(encoder.OpImageEncode, or(r.Format, "png"), encoder.Params{Quality: params.ConvertImageQuality})
		},
	},
	{
		name:  "audio",
		match: func(r Request) bool { return r.Class == detect.Audio && (r.Format == "" || audioTargets.Has(r.Format)) },
		plan: func(r Request) Route {
			return route(encoder.OpAudioEncode, or(r.Format, "mp3"), encoder.Params{Bitrate: params.ConvertAudioBitrate})
		},
	},
	{
		name:  "video-webm",
		match: classAndFormat(detect.Video, detect.NewSet("webm")),
		plan: func(Request) Route {
			return route(encoder.OpVideoWebM, "webm", encoder.Params{CRF: webmCRF, AudioBitrate: convertAudioBit})
		},
	},
	{
		name:  "video-gif",
		match: classAndFormat(detect.Video, detect.NewSet("gif")),
		plan: func(Request) Route {
			return route(encoder.OpVideoGIF, "gif", encoder.Params{FPS: gifFPS, Width: gifWidth})
		},
	},
	{
		name:  "video-audio",
		match: classAndFormat(detect.Video, extractTargets),
		plan: func(r Request) Route {
			return route(encoder.OpVideoExtractAudio, r.Format, encoder.Params{Bitrate: params.ConvertAudioBitrate})
		},
	},
	{
		name:  "video-transcode",
		match: classAndFormat(detect.Video, transcodeTargets),
		plan: func(r Request) Route {
			return route(encoder.OpVideoTranscode, r.Format, encoder.Params{
				CRF: transcodeCRF, Preset: convertPreset, AudioBitrate: convertAudioBit,
			})
		},
	},
	{
		name:  "video",
		match: class(detect.Video),
		plan: func(Request) Route {
			return route(encoder.OpVideoEncode, "mp4", encoder.Params{
				CRF: params.ConvertVideoCRF, Preset: convertPreset, AudioBitrate: convertAudioBit,
			})
		},
	},
	{
		name:  "pdf-docx",
		match: classAndFormat(detect.PDF, detect.NewSet("docx")),
		plan:  func(Request) Route { return route(encoder.OpPDFToDOCX, "docx", encoder.Params{}) },
	},
	{
		name:  "pdf-pages",
		match: classAndFormat(detect.PDF, rasterTargets),
		plan: func(r Request) Route {
			return route(encoder.OpPDFRasterize, r.Format, encoder.Params{DPI: params.ConvertRasterDPI, AllPages: true})
		},
	},
	{
		name:  "pdf",
		match: class(detect.PDF),
		plan: func(Request) Route {
			return route(encoder.OpPDFRasterize, "png", encoder.Params{DPI: params.ConvertRasterDPI})
		},
	},
	{
		name:  "csv-pdf",
		match: func(r Request) bool { return r.Ext == "csv" && r.Format == "pdf" },
		plan:  func(Request) Route { return route(encoder.OpCSVToPDF, "pdf", encoder.Params{}) },
	},
	{
		name:  "csv",
		match: func(r Request) bool { return r.Ext == "csv" },
		plan:  func(Request) Route { return route(encoder.OpCSVToXLSX, "xlsx", encoder.Params{}) },
	},
	{
		name:  "text",
		match: func(r Request) bool { return textSources.Has(r.Ext) },
		plan:  func(Request) Route { return route(encoder.OpTextToPDF, "pdf", encoder.Params{}) },
	},
	{
		name:  "ebook",
		match: func(r Request) bool { return ebookSources.Has(r.Ext) },
		plan:  func(Request) Route { return route(encoder.OpOfficeToPDF, "pdf", encoder.Params{}) },
	},
	{
		name:  "office",
		match: func(r Request) bool { return officeSources.Has(r.Ext) },
		plan:  func(Request) Route { return route(encoder.OpOfficeToPDF, "pdf", encoder.Params{}) },
	},
}

// Convert picks the conversion for a request. Requests no rule accepts
// fail with an unsupported error.
func Convert(r Request) (Route, error) {
	for _, rl := range convertRules {
		if rl.match(r) {
			return rl.plan(r), nil
		}
	}
	if r.Format != "" {
		return Route{}, failures.Errorf(failures.KindUnsupported, "convert",
			"cannot convert %s file %q to %q", r.Class, r.Ext, r.Format)
	}
	return Route{}, failures.Errorf(failures.KindUnsupported, "convert",
		"unsupported file type: %s (.%s)", r.Class, r.Ext)
}

// RuleName reports which convert rule serves r, or "" when none does.
func RuleName(r Request) string {
	for _, rl := range convertRules {
		if rl.match(r) {
			return rl.name
		}
	}
	return ""
}

// Compress plans the compress path for a source of the given class.
func Compress(c detect.Class, ext string, target int) Route {
	outExt := params.OutputExt(c, ext)
	format := outExt[min(1, len(outExt)):]
	r := Route{Ext: outExt, Params: encoder.Params{Format: format}}

	switch c {
	case detect.Image:
		r.Op = encoder.OpImageEncode
		r.Params.Quality = params.ImageQuality(target)
	case detect.Audio:
		r.Op = encoder.OpAudioEncode
		r.Params.Bitrate = params.AudioBitrate(target)
	case detect.Video:
		r.Op = encoder.OpVideoEncode
		r.Params.CRF = params.VideoCRF(target)
		r.Params.Preset = params.CompressVideoPreset
		r.Params.AudioBitrate = params.CompressVideoAudioBitrate
	case detect.PDF:
		r.Op = encoder.OpPDFCompress
		r.Params.DPI = params.PDFDPI(target)
	case detect.Archive:
		r.Op = encoder.OpCopy
	case detect.Text:
		r.Op = encoder.OpZstd
		r.Params.Level = params.ZstdLevel(target)
	default:
		r.Op = encoder.OpBrotli
		r.Params.Level = params.BrotliQuality(target)
	}
	return r
}
