// Package params maps a compression target percent onto concrete encoder
// settings. Every function here is pure.
package params

import (
	"fmt"

	"transmute/detect"
)

// Convert-path defaults. These do not follow the target percent.
const (
	ConvertAudioBitrate = "192k"
	ConvertVideoCRF     = 28
	ConvertImageQuality = 85
	ConvertRasterDPI    = 200
)

// Compress-path video settings that are not derived from the target.
const (
	CompressVideoPreset       = "ultrafast"
	CompressVideoAudioBitrate = "96k"
)

// ImageQuality returns max(5, 95-t).
func ImageQuality(t int) int {
	return max(5, 95-t)
}

// AudioBitrate picks a bitrate tier for the target.
func AudioBitrate(t int) string {
	switch {
	case t <= 20:
		return "256k"
	case t <= 40:
		return "192k"
	case t <= 60:
		return "128k"
	case t <= 80:
		return "96k"
	}
	return "64k"
}

// VideoCRF returns 18 + int(t*0.3), bounded to [18,45].
func VideoCRF(t int) int {
	// t*3/10 is int(t*0.3) without float rounding surprises.
	crf := 18 + t*3/10
	return min(45, max(18, crf))
}

// PDFDPI picks a downsampling resolution for the target.
func PDFDPI(t int) int {
	switch {
	case t <= 30:
		return 200
	case t <= 60:
		return 150
	case t <= 80:
		return 110
	}
	return 72
}

// ZstdLevel returns min(22, t/4).
func ZstdLevel(t int) int {
	return min(22, t/4)
}

// BrotliQuality returns min(11, t/8).
func BrotliQuality(t int) int {
	return min(11, t/8)
}

var (
	nativeImage = detect.NewSet("jpg", "jpeg", "png", "webp")
	nativeAudio = detect.NewSet("mp3", "wav", "opus", "aac", "ogg", "flac")
	nativeVideo = detect.NewSet("mp4", "mkv", "webm", "avi", "mov")
)

// OutputExt returns the compress-path output extension, with the dot, for a
// source of the given class and extension (no dot).
func OutputExt(class detect.Class, ext string) string {
	switch class {
	case detect.Image:
		return keepOr(nativeImage, ext, "jpg")
	case detect.Audio:
		return keepOr(nativeAudio, ext, "mp3")
	case detect.Video:
		return keepOr(nativeVideo, ext, "mp4")
	case detect.PDF:
		return ".pdf"
	case detect.Archive:
		return dotted(ext)
	case detect.Text:
		return dotted(ext) + ".zst"
	}
	return dotted(ext) + ".br"
}

func keepOr(native detect.Set, ext, fallback string) string {
	if native.Has(ext) {
		return "." + ext
	}
	return "." + fallback
}

func dotted(ext string) string {
	if ext == "" {
		return ""
	}
	return "." + ext
}

// Describe renders the settings a compress job will use, for logging.
func Describe(class detect.Class, t int) string {
	switch class {
	case detect.Image:
		return fmt.Sprintf("quality=%d", ImageQuality(t))
	case detect.Audio:
		return fmt.Sprintf("bitrate=%s", AudioBitrate(t))
	case detect.Video:
		return fmt.Sprintf("crf=%d", VideoCRF(t))
	case detect.PDF:
		return fmt.Sprintf("dpi=%d", PDFDPI(t))
	case detect.Text:
		return fmt.Sprintf("zstd=%d", ZstdLevel(t))
	case detect.Archive:
		return "copy"
	}
	return fmt.Sprintf("brotli=%d", BrotliQuality(t))
}
