package encoder

import (
	"context"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// streamTo copies in through the writer wrap builds around out's file.
func streamTo(op, in, out string, wrap func(io.Writer) (io.WriteCloser, error)) (string, error) {
	src, err := os.Open(in)
	if err != nil {
		return "", ioErr(op, err)
	}
	defer src.Close()

	dst, err := os.Create(out)
	if err != nil {
		return "", ioErr(op, err)
	}
	defer dst.Close()

	w, err := wrap(dst)
	if err != nil {
		return "", ioErr(op, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return "", ioErr(op, err)
	}
	if err := w.Close(); err != nil {
		return "", ioErr(op, err)
	}
	if err := dst.Sync(); err != nil {
		return "", ioErr(op, err)
	}
	return out, nil
}

func encodeZstd(_ context.Context, in, out string, p Params) (string, error) {
	return streamTo(string(OpZstd), in, out, func(w io.Writer) (io.WriteCloser, error) {
		// zstd levels 1..22 map onto the four encoder speed presets
		level := zstd.EncoderLevelFromZstd(max(1, p.Level))
		return zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	})
}

func encodeBrotli(_ context.Context, in, out string, p Params) (string, error) {
	return streamTo(string(OpBrotli), in, out, func(w io.Writer) (io.WriteCloser, error) {
		return brotli.NewWriterLevel(w, p.Level), nil
	})
}
