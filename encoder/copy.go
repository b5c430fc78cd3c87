package encoder

import (
	"context"
	"io"
	"os"

	"transmute/logger"
)

// EncodeCopy copies the input file to the output path without any encoding.
// Archive inputs take this path.
func EncodeCopy(ctx context.Context, input, output string, _ Params) (string, error) {
	const op = string(OpCopy)
	src, err := os.Open(input)
	if err != nil {
		return "", ioErr(op, err)
	}
	defer src.Close()

	dst, err := os.Create(output)
	if err != nil {
		return "", ioErr(op, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", ioErr(op, err)
	}
	if err := dst.Sync(); err != nil {
		return "", ioErr(op, err)
	}

	logger.Debugf("copied original file from %s to %s", input, output)
	return output, nil
}
