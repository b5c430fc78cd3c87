package router

import (
	"testing"

	"transmute/detect"
	"transmute/encoder"
	"transmute/failures"
)

func TestConvertTable(t *testing.T) {
	cases := []struct {
		class  detect.Class
		ext    string
		format string
		op     encoder.Op
		outExt string
	}{
		{detect.Image, "svg", "jpg", encoder.OpSVGRasterize, ".png"},
		{detect.Image, "png", "pdf", encoder.OpImageToPDF, ".pdf"},
		{detect.Image, "heic", "", encoder.OpImageEncode, ".png"},
		{detect.Image, "png", "webp", encoder.OpImageEncode, ".webp"},
		{detect.Audio, "wav", "", encoder.OpAudioEncode, ".mp3"},
		{detect.Audio, "mp3", "flac", encoder.OpAudioEncode, ".flac"},
		{detect.Video, "mp4", "webm", encoder.OpVideoWebM, ".webm"},
		{detect.Video, "mov", "gif", encoder.OpVideoGIF, ".gif"},
		{detect.Video, "mkv", "opus", encoder.OpVideoExtractAudio, ".opus"},
		{detect.Video, "avi", "mkv", encoder.OpVideoTranscode, ".mkv"},
		{detect.Video, "flv", "", encoder.OpVideoEncode, ".mp4"},
		{detect.Video, "gif", "png", encoder.OpVideoEncode, ".mp4"},
		{detect.PDF, "pdf", "docx", encoder.OpPDFToDOCX, ".docx"},
		{detect.PDF, "pdf", "jpg", encoder.OpPDFRasterize, ".jpg"},
		{detect.PDF, "pdf", "", encoder.OpPDFRasterize, ".png"},
		{detect.Text, "csv", "pdf", encoder.OpCSVToPDF, ".pdf"},
		{detect.Text, "csv", "", encoder.OpCSVToXLSX, ".xlsx"},
		{detect.Text, "md", "", encoder.OpTextToPDF, ".pdf"},
		{detect.Binary, "json", "pdf", encoder.OpTextToPDF, ".pdf"},
		{detect.Binary, "epub", "", encoder.OpOfficeToPDF, ".pdf"},
		{detect.Binary, "docx", "pdf", encoder.OpOfficeToPDF, ".pdf"},
	}
	for _, c := range cases {
		r, err := Convert(Request{Class: c.class, Ext: c.ext, Format: c.format})
		if err != nil {
			t.Errorf("%s/%s->%q: unexpected error %v", c.class, c.ext, c.format, err)
			continue
		}
		if r.Op != c.op || r.Ext != c.outExt {
			t.Errorf("%s/%s->%q: got %s %s, want %s %s", c.class, c.ext, c.format, r.Op, r.Ext, c.op, c.outExt)
		}
	}
}

func TestConvertParameters(t *testing.T) {
	r, _ := Convert(Request{Class: detect.Audio, Ext: "wav"})
	if r.Params.Bitrate != "192k" {
		t.Errorf("audio convert bitrate = %s, want 192k", r.Params.Bitrate)
	}
	r, _ = Convert(Request{Class: detect.Video, Ext: "flv"})
	if r.Params.CRF != 28 || r.Params.Preset != "veryfast" {
		t.Errorf("default video convert = crf %d %s", r.Params.CRF, r.Params.Preset)
	}
	r, _ = Convert(Request{Class: detect.PDF, Ext: "pdf", Format: "png"})
	if !r.Params.AllPages || r.Params.DPI != 200 {
		t.Errorf("pdf raster with format should render all pages at 200dpi: %+v", r.Params)
	}
	r, _ = Convert(Request{Class: detect.PDF, Ext: "pdf"})
	if r.Params.AllPages {
		t.Error("pdf raster without format renders page 1 only")
	}
	r, _ = Convert(Request{Class: detect.Image, Ext: "bmp", Format: "jpg"})
	if r.Params.Quality != 85 || r.Params.Format != "jpg" {
		t.Errorf("image convert params: %+v", r.Params)
	}
}

func TestConvertUnsupported(t *testing.T) {
	for _, req := range []Request{
		{Class: detect.Binary, Ext: "exe"},
		{Class: detect.Archive, Ext: "zip"},
		{Class: detect.Image, Ext: "png", Format: "docx"},
		{Class: detect.Audio, Ext: "mp3", Format: "mp4"},
	} {
		_, err := Convert(req)
		if !failures.Is(err, failures.KindUnsupported) {
			t.Errorf("%+v: expected unsupported, got %v", req, err)
		}
		if RuleName(req) != "" {
			t.Errorf("%+v: no rule should match", req)
		}
	}
}

func TestConvertIsDeterministic(t *testing.T) {
	req := Request{Class: detect.Video, Ext: "mp4", Format: "gif"}
	first, _ := Convert(req)
	for i := 0; i < 10; i++ {
		again, _ := Convert(req)
		if again != first {
			t.Fatal("Convert returned different routes for the same request")
		}
	}
	if RuleName(req) != "video-gif" {
		t.Errorf("unexpected rule %q", RuleName(req))
	}
}

func TestCompressPlanner(t *testing.T) {
	cases := []struct {
		class  detect.Class
		ext    string
		op     encoder.Op
		outExt string
	}{
		{detect.Image, "png", encoder.OpImageEncode, ".png"},
		{detect.Image, "tiff", encoder.OpImageEncode, ".jpg"},
		{detect.Audio, "ogg", encoder.OpAudioEncode, ".ogg"},
		{detect.Video, "mov", encoder.OpVideoEncode, ".mov"},
		{detect.PDF, "pdf", encoder.OpPDFCompress, ".pdf"},
		{detect.Archive, "7z", encoder.OpCopy, ".7z"},
		{detect.Text, "txt", encoder.OpZstd, ".txt.zst"},
		{detect.Binary, "bin", encoder.OpBrotli, ".bin.br"},
	}
	for _, c := range cases {
		r := Compress(c.class, c.ext, 70)
		if r.Op != c.op || r.Ext != c.outExt {
			t.Errorf("%s/%s: got %s %s, want %s %s", c.class, c.ext, r.Op, r.Ext, c.op, c.outExt)
		}
	}

	v := Compress(detect.Video, "mp4", 70)
	if v.Params.CRF != 39 || v.Params.Preset != "ultrafast" || v.Params.AudioBitrate != "96k" {
		t.Errorf("video compress params: %+v", v.Params)
	}
	if img := Compress(detect.Image, "jpg", 70); img.Params.Quality != 25 {
		t.Errorf("image quality = %d, want 25", img.Params.Quality)
	}
	if txt := Compress(detect.Text, "txt", 70); txt.Params.Level != 17 {
		t.Errorf("zstd level = %d, want 17", txt.Params.Level)
	}
}
