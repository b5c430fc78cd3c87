package encoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"transmute/logger"
)

// audioCodecArgs picks the codec for an audio container. Lossless and PCM
// containers ignore the bitrate.
func audioCodecArgs(format, bitrate string) []string {
	switch strings.ToLower(format) {
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-b:a", bitrate}
	case "aac", "m4a":
		return []string{"-c:a", "aac", "-b:a", bitrate}
	case "opus":
		return []string{"-c:a", "libopus", "-b:a", bitrate}
	case "ogg":
		return []string{"-c:a", "libvorbis", "-b:a", bitrate}
	case "flac":
		return []string{"-c:a", "flac"}
	case "wav":
		return []string{"-c:a", "pcm_s16le"}
	}
	return []string{"-b:a", bitrate}
}

func (b *backends) ffmpeg(ctx context.Context, in, out string, middle ...string) error {
	args := append([]string{"-hide_banner", "-loglevel", "error", "-y", "-i", in}, middle...)
	args = append(args, out)
	return b.run.Run(ctx, b.tools.FFmpeg, args...)
}

func (b *backends) audioEncode(ctx context.Context, in, out string, p Params) (string, error) {
	args := append([]string{"-vn"}, audioCodecArgs(p.Format, p.Bitrate)...)
	if err := b.ffmpeg(ctx, in, out, args...); err != nil {
		return "", err
	}
	return out, nil
}

func (b *backends) extractAudio(ctx context.Context, in, out string, p Params) (string, error) {
	return b.audioEncode(ctx, in, out, p)
}

// videoEncode serves both the compress path and the H.264 transcodes. A
// webm container cannot hold H.264, so webm output goes through VP9.
func (b *backends) videoEncode(ctx context.Context, in, out string, p Params) (string, error) {
	if strings.EqualFold(p.Format, "webm") {
		return b.vp9(ctx, in, out, p.CRF, p.AudioBitrate)
	}
	args := []string{
		"-c:v", "libx264",
		"-crf", fmt.Sprint(p.CRF),
		"-preset", p.Preset,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", p.AudioBitrate,
	}
	if strings.EqualFold(p.Format, "mp4") || strings.EqualFold(p.Format, "mov") {
		args = append(args, "-movflags", "+faststart")
	}
	if err := b.ffmpeg(ctx, in, out, args...); err != nil {
		return "", err
	}
	return out, nil
}

func (b *backends) videoWebM(ctx context.Context, in, out string, p Params) (string, error) {
	return b.vp9(ctx, in, out, p.CRF, p.AudioBitrate)
}

func (b *backends) vp9(ctx context.Context, in, out string, crf int, audioBitrate string) (string, error) {
	args := []string{
		"-c:v", "libvpx-vp9",
		"-crf", fmt.Sprint(crf),
		"-b:v", "0",
		"-c:a", "libopus",
		"-b:a", audioBitrate,
	}
	if err := b.ffmpeg(ctx, in, out, args...); err != nil {
		return "", err
	}
	return out, nil
}

// videoGIF renders a palette first, then maps the frames onto it.
func (b *backends) videoGIF(ctx context.Context, in, out string, p Params) (string, error) {
	filters := fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos", p.FPS, p.Width)
	palette := strings.TrimSuffix(out, filepath.Ext(out)) + ".palette.png"
	defer func() {
		if err := os.Remove(palette); err != nil && !os.IsNotExist(err) {
			logger.Warnf("failed to remove palette %s: %v", palette, err)
		}
	}()

	if err := b.ffmpeg(ctx, in, palette, "-vf", filters+",palettegen"); err != nil {
		return "", err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-i", palette,
		"-lavfi", filters + "[x];[x][1:v]paletteuse",
		out,
	}
	if err := b.run.Run(ctx, b.tools.FFmpeg, args...); err != nil {
		return "", err
	}
	return out, nil
}
