package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"transmute/failures"
	"transmute/logger"
)

// OfficeConverter turns an office document into a PDF written at out.
type OfficeConverter interface {
	ConvertToPDF(ctx context.Context, in, out string) error
}

// officeToPDF runs the configured converter under a hard deadline. No retry.
func (b *backends) officeToPDF(ctx context.Context, in, out string, _ Params) (string, error) {
	const op = string(OpOfficeToPDF)
	ctx, cancel := context.WithTimeout(ctx, b.officeTimeout)
	defer cancel()

	err := b.office.ConvertToPDF(ctx, in, out)
	if err == nil {
		return out, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		os.Remove(out)
		return "", failures.New(failures.KindToolTimeout, op,
			fmt.Errorf("office conversion exceeded %s", b.officeTimeout))
	}
	return "", err
}

// Gotenberg converts through a Gotenberg instance's LibreOffice route.
type Gotenberg struct {
	baseURL string
	client  *http.Client
}

func NewGotenberg(baseURL string, client *http.Client) *Gotenberg {
	if client == nil {
		client = &http.Client{
			Timeout: 0, // Use context timeout instead
		}
	}
	return &Gotenberg{baseURL: baseURL, client: client}
}

func (g *Gotenberg) ConvertToPDF(ctx context.Context, in, out string) error {
	const op = string(OpOfficeToPDF)
	file, err := os.Open(in)
	if err != nil {
		return ioErr(op, fmt.Errorf("failed to open input file: %w", err))
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", filepath.Base(in))
	if err != nil {
		return ioErr(op, fmt.Errorf("failed to create form file: %w", err))
	}
	if _, err := io.Copy(part, file); err != nil {
		return ioErr(op, fmt.Errorf("failed to copy file: %w", err))
	}
	if err := writer.Close(); err != nil {
		return ioErr(op, fmt.Errorf("failed to close writer: %w", err))
	}

	url := fmt.Sprintf("%s/forms/libreoffice/convert", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return failures.New(failures.KindInternal, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return failures.New(failures.KindToolFailed, op, fmt.Errorf("gotenberg request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, stderrTail))
		return wrapf(failures.KindToolFailed, op, "gotenberg returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	outFile, err := os.Create(out)
	if err != nil {
		return ioErr(op, fmt.Errorf("failed to create output file: %w", err))
	}
	defer outFile.Close()
	if _, err := io.Copy(outFile, resp.Body); err != nil {
		return ioErr(op, fmt.Errorf("failed to save converted file: %w", err))
	}
	logger.Debugf("gotenberg converted %s", filepath.Base(in))
	return nil
}

// sofficeConverter converts with a local headless LibreOffice.
type sofficeConverter struct {
	run Runner
	bin string
}

func (s *sofficeConverter) ConvertToPDF(ctx context.Context, in, out string) error {
	produced, err := runSoffice(ctx, s.run, s.bin, in, filepath.Dir(out), "--convert-to", "pdf")
	if err != nil {
		return err
	}
	if err := os.Rename(produced, out); err != nil {
		return ioErr(string(OpOfficeToPDF), err)
	}
	return nil
}

// runSoffice converts in inside a scratch directory under dir and returns
// the produced file. Each call gets its own profile so concurrent
// conversions do not contend for the LibreOffice user lock.
func runSoffice(ctx context.Context, run Runner, bin, in, dir string, convertArgs ...string) (string, error) {
	work, err := os.MkdirTemp(dir, "soffice-")
	if err != nil {
		return "", ioErr("soffice", err)
	}
	outDir := filepath.Join(work, "out")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", ioErr("soffice", err)
	}

	args := []string{
		"--headless", "--norestore",
		"-env:UserInstallation=file://" + filepath.ToSlash(filepath.Join(work, "profile")),
	}
	args = append(args, convertArgs...)
	args = append(args, "--outdir", outDir, in)
	if err := run.Run(ctx, bin, args...); err != nil {
		os.RemoveAll(work)
		return "", err
	}

	entries, err := os.ReadDir(outDir)
	if err != nil || len(entries) == 0 {
		os.RemoveAll(work)
		return "", failures.Errorf(failures.KindToolFailed, "soffice", "no output produced for %s", filepath.Base(in))
	}
	produced := filepath.Join(dir, filepath.Base(work)+"-"+entries[0].Name())
	if err := os.Rename(filepath.Join(outDir, entries[0].Name()), produced); err != nil {
		os.RemoveAll(work)
		return "", ioErr("soffice", err)
	}
	os.RemoveAll(work)
	return produced, nil
}
