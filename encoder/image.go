package encoder

import (
	"context"
	"fmt"
	"strings"
)

// magickCoder maps an output format onto ImageMagick's coder prefix.
func magickCoder(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "jpg"
	}
	return format
}

// imageEncode re-encodes the first frame of input at the given quality.
func (b *backends) imageEncode(ctx context.Context, in, out string, p Params) (string, error) {
	format := strings.ToLower(p.Format)
	args := []string{in + "[0]"}
	if format == "jpg" || format == "jpeg" {
		// JPEG has no alpha channel
		args = append(args, "-background", "white", "-alpha", "remove", "-alpha", "off")
	}
	args = append(args,
		"-strip",
		"-quality", fmt.Sprint(p.Quality),
		fmt.Sprintf("%s:%s", magickCoder(format), out),
	)
	if err := b.run.Run(ctx, b.tools.Magick, args...); err != nil {
		return "", err
	}
	return out, nil
}

func (b *backends) imageToPDF(ctx context.Context, in, out string, p Params) (string, error) {
	args := []string{
		in + "[0]",
		"-quality", fmt.Sprint(p.Quality),
		"pdf:" + out,
	}
	if err := b.run.Run(ctx, b.tools.Magick, args...); err != nil {
		return "", err
	}
	return out, nil
}

func (b *backends) svgRasterize(ctx context.Context, in, out string, _ Params) (string, error) {
	if err := b.run.Run(ctx, b.tools.Rsvg, "-f", "png", "-o", out, in); err != nil {
		return "", err
	}
	return out, nil
}
