package params

import (
	"strconv"
	"strings"
	"testing"

	"transmute/detect"
)

func kbps(s string) int {
	n, _ := strconv.Atoi(strings.TrimSuffix(s, "k"))
	return n
}

func TestMappingsOverTargetRange(t *testing.T) {
	prevQ, prevB, prevCRF, prevDPI := 1<<30, 1<<30, -1, 1<<30
	for target := 0; target <= 90; target++ {
		q := ImageQuality(target)
		if q < 5 || q > 95 {
			t.Fatalf("t=%d: image quality %d out of [5,95]", target, q)
		}
		if q > prevQ {
			t.Fatalf("t=%d: image quality increased", target)
		}
		prevQ = q

		b := kbps(AudioBitrate(target))
		if b > prevB {
			t.Fatalf("t=%d: bitrate increased", target)
		}
		prevB = b

		crf := VideoCRF(target)
		if crf < 18 || crf > 45 {
			t.Fatalf("t=%d: crf %d out of [18,45]", target, crf)
		}
		if crf < prevCRF {
			t.Fatalf("t=%d: crf decreased", target)
		}
		prevCRF = crf

		dpi := PDFDPI(target)
		if dpi > prevDPI {
			t.Fatalf("t=%d: dpi increased", target)
		}
		prevDPI = dpi

		if l := ZstdLevel(target); l < 0 || l > 22 {
			t.Fatalf("t=%d: zstd level %d", target, l)
		}
		if b := BrotliQuality(target); b < 0 || b > 11 {
			t.Fatalf("t=%d: brotli quality %d", target, b)
		}
	}
}

func TestMappingBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		got, want any
	}{
		{"quality 0", ImageQuality(0), 95},
		{"quality 90", ImageQuality(90), 5},
		{"quality 70", ImageQuality(70), 25},
		{"bitrate 20", AudioBitrate(20), "256k"},
		{"bitrate 21", AudioBitrate(21), "192k"},
		{"bitrate 60", AudioBitrate(60), "128k"},
		{"bitrate 70", AudioBitrate(70), "96k"},
		{"bitrate 81", AudioBitrate(81), "64k"},
		{"crf 0", VideoCRF(0), 18},
		{"crf 70", VideoCRF(70), 39},
		{"crf 90", VideoCRF(90), 45},
		{"dpi 30", PDFDPI(30), 200},
		{"dpi 31", PDFDPI(31), 150},
		{"dpi 70", PDFDPI(70), 110},
		{"dpi 81", PDFDPI(81), 72},
		{"zstd 70", ZstdLevel(70), 17},
		{"zstd 90", ZstdLevel(90), 22},
		{"brotli 70", BrotliQuality(70), 8},
		{"brotli 90", BrotliQuality(90), 11},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestOutputExt(t *testing.T) {
	cases := []struct {
		class detect.Class
		ext   string
		want  string
	}{
		{detect.Image, "png", ".png"},
		{detect.Image, "bmp", ".jpg"},
		{detect.Audio, "flac", ".flac"},
		{detect.Audio, "m4a", ".mp3"},
		{detect.Video, "webm", ".webm"},
		{detect.Video, "flv", ".mp4"},
		{detect.PDF, "pdf", ".pdf"},
		{detect.Archive, "zip", ".zip"},
		{detect.Text, "txt", ".txt.zst"},
		{detect.Binary, "bin", ".bin.br"},
		{detect.Binary, "", ".br"},
	}
	for _, c := range cases {
		if got := OutputExt(c.class, c.ext); got != c.want {
			t.Errorf("OutputExt(%s, %q) = %q, want %q", c.class, c.ext, got, c.want)
		}
	}
}
