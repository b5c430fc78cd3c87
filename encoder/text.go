package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"transmute/failures"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText reads bytes as UTF-8, then Latin-1, then Windows-1252.
//
// Bytes in 0x80-0x9F are C1 controls in Latin-1 but printable in
// Windows-1252, so input carrying them prefers 1252. Input with bytes 1252
// leaves undefined stays Latin-1, which maps every byte.
func DecodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	if hasC1(data) && !undefined1252(data) {
		if text, err := charmap.Windows1252.NewDecoder().String(string(data)); err == nil {
			return text, nil
		}
	}
	text, err := charmap.ISO8859_1.NewDecoder().String(string(data))
	if err != nil {
		return "", fmt.Errorf("input is not UTF-8, Latin-1 or Windows-1252 text: %w", err)
	}
	return text, nil
}

func hasC1(data []byte) bool {
	for _, c := range data {
		if c >= 0x80 && c <= 0x9F {
			return true
		}
	}
	return false
}

func undefined1252(data []byte) bool {
	for _, c := range data {
		switch c {
		case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
			return true
		}
	}
	return false
}

func readText(op, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ioErr(op, err)
	}
	text, err := DecodeText(data)
	if err != nil {
		return "", failures.New(failures.KindDecode, op, err)
	}
	return text, nil
}

const (
	textFontSize   = 10.0
	textLineHeight = 4.6
	tabWidth       = 4
)

// preserveIndent swaps leading spaces for non-breaking spaces so line
// wrapping does not eat the indentation.
func preserveIndent(line string) string {
	line = strings.ReplaceAll(line, "\t", strings.Repeat(" ", tabWidth))
	trimmed := strings.TrimLeft(line, " ")
	n := len(line) - len(trimmed)
	if n == 0 {
		return line
	}
	return strings.Repeat("\u00a0", n) + trimmed
}

// textToPDF draws the text literally in a monospaced font. Blank lines
// become vertical space.
func textToPDF(_ context.Context, in, out string, _ Params) (string, error) {
	const op = string(OpTextToPDF)
	text, err := readText(op, in)
	if err != nil {
		return "", err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Courier", "", textFontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			pdf.Ln(textLineHeight)
			continue
		}
		pdf.MultiCell(0, textLineHeight, tr(preserveIndent(line)), "", "L", false)
	}

	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", failures.New(failures.KindIO, op, fmt.Errorf("write pdf: %w", err))
	}
	return out, nil
}
