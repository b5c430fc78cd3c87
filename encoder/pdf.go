package encoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"transmute/failures"
	"transmute/logger"
)

func (b *backends) pdfCompress(ctx context.Context, in, out string, p Params) (string, error) {
	args := []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=/screen",
		fmt.Sprintf("-dColorImageResolution=%d", p.DPI),
		fmt.Sprintf("-dGrayImageResolution=%d", p.DPI),
		fmt.Sprintf("-dMonoImageResolution=%d", p.DPI),
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-sOutputFile=" + out,
		in,
	}
	if err := b.run.Run(ctx, b.tools.GS, args...); err != nil {
		return "", err
	}
	return out, nil
}

// pdfRasterize renders pages with pdftoppm. With AllPages a single page
// becomes out itself and several pages become one zip next to it.
func (b *backends) pdfRasterize(ctx context.Context, in, out string, p Params) (string, error) {
	const op = string(OpPDFRasterize)
	format := strings.ToLower(p.Format)
	if format == "" {
		format = "png"
	}

	work, err := os.MkdirTemp(filepath.Dir(out), "pages-")
	if err != nil {
		return "", ioErr(op, err)
	}
	defer os.RemoveAll(work)

	args := []string{"-r", fmt.Sprint(p.DPI)}
	switch format {
	case "jpg", "jpeg":
		args = append(args, "-jpeg")
	default:
		// webp pages are rendered as png and re-encoded below
		args = append(args, "-png")
	}
	if !p.AllPages {
		args = append(args, "-f", "1", "-l", "1", "-singlefile")
	}
	prefix := filepath.Join(work, "page")
	args = append(args, in, prefix)
	if err := b.run.Run(ctx, b.tools.PDFToPPM, args...); err != nil {
		return "", err
	}

	pages, err := renderedPages(work)
	if err != nil {
		return "", ioErr(op, err)
	}
	if len(pages) == 0 {
		return "", failures.Errorf(failures.KindToolFailed, op, "pdftoppm produced no pages")
	}

	if format == "webp" {
		for i, page := range pages {
			webp := strings.TrimSuffix(page, filepath.Ext(page)) + ".webp"
			if err := b.run.Run(ctx, b.tools.Magick, page, "-quality", "90", "webp:"+webp); err != nil {
				return "", err
			}
			pages[i] = webp
		}
	}

	if len(pages) == 1 {
		if err := os.Rename(pages[0], out); err != nil {
			return "", ioErr(op, err)
		}
		return out, nil
	}

	stem := strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
	archive := filepath.Join(filepath.Dir(out), stem+".zip")
	if err := zipPages(archive, stem, format, pages); err != nil {
		return "", ioErr(op, err)
	}
	logger.Debugf("zipped %d pages into %s", len(pages), archive)
	return archive, nil
}

// renderedPages lists pdftoppm output in page order. pdftoppm pads page
// numbers to a common width, so lexical order is page order.
func renderedPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var pages []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		pages = append(pages, filepath.Join(dir, e.Name()))
	}
	sort.Strings(pages)
	return pages, nil
}

func zipPages(archive, stem, format string, pages []string) error {
	f, err := os.Create(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for i, page := range pages {
		name := fmt.Sprintf("%s_page%d.%s", stem, i+1, format)
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		src, err := os.Open(page)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// pdfToDOCX imports the PDF into Writer and saves it as Word 2007 XML.
func (b *backends) pdfToDOCX(ctx context.Context, in, out string, _ Params) (string, error) {
	produced, err := runSoffice(ctx, b.run, b.tools.Soffice, in, filepath.Dir(out),
		"--infilter=writer_pdf_import", "--convert-to", "docx:MS Word 2007 XML")
	if err != nil {
		return "", err
	}
	if err := os.Rename(produced, out); err != nil {
		return "", ioErr(string(OpPDFToDOCX), err)
	}
	return out, nil
}
