package job

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"transmute/blob"
	"transmute/cache"
	"transmute/config"
	"transmute/encoder"
	"transmute/failures"
	"transmute/logger"
	"transmute/models"
	"transmute/store"
)

const (
	uploadBucket = "upload"
	outputBucket = "output"
)

// recordingRunner fakes the external tools. By default it writes the
// file named by the last argument, minus any "coder:" prefix.
type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	fn    func(name string, args []string) error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(name, args)
	}
	out := args[len(args)-1]
	if i := strings.Index(out, ":"); i >= 0 {
		out = out[i+1:]
	}
	return os.WriteFile(out, []byte("encoded"), 0o644)
}

func (r *recordingRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]error
}

func (l *fakeLedger) Record(jobID string, err error, _ any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.records == nil {
		l.records = map[string]error{}
	}
	l.records[jobID] = err
	return nil
}

func (l *fakeLedger) get(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[id]
}

type harness struct {
	t      *testing.T
	store  store.Store
	blobs  blob.Store
	ledger *fakeLedger
	runner *recordingRunner
	worker *Worker
	dirs   Settings
}

var testTools = config.Tools{
	Magick: "magick", FFmpeg: "ffmpeg", GS: "gs",
	PDFToPPM: "pdftoppm", Soffice: "soffice", Rsvg: "rsvg-convert",
}

// newHarness wires a worker to a pebble store, a local blob store and a
// registry whose tools are faked. Tools in missing are absent from PATH.
func newHarness(t *testing.T, missing ...string) *harness {
	t.Helper()
	logger.SetOutput(io.Discard)
	root := t.TempDir()

	s, err := store.OpenPebble(filepath.Join(root, "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	blobs, err := blob.NewLocal(filepath.Join(root, "blobs"))
	if err != nil {
		t.Fatal(err)
	}

	runner := &recordingRunner{}
	lookPath := func(name string) (string, error) {
		for _, m := range missing {
			if m == name {
				return "", errors.New("not found")
			}
		}
		return "/usr/bin/" + name, nil
	}
	reg := encoder.New(encoder.Options{Tools: testTools, Runner: runner, LookPath: lookPath})

	settings := Settings{
		UploadDir:    filepath.Join(root, "uploads"),
		OutputDir:    filepath.Join(root, "output"),
		UploadBucket: uploadBucket,
		OutputBucket: outputBucket,
		PollInterval: 10 * time.Millisecond,
	}
	ledger := &fakeLedger{}
	w := New(Deps{Store: s, Blobs: blobs, Encoder: reg, Ledger: ledger}, settings)
	return &harness{t: t, store: s, blobs: blobs, ledger: ledger, runner: runner, worker: w, dirs: settings}
}

// submit uploads data to the upload bucket and queues a job for it.
func (h *harness) submit(filename string, action models.Action, target int, toFormat string, data []byte) *models.Job {
	h.t.Helper()
	key := uuid.NewString() + "_" + filename
	if err := h.blobs.Upload(context.Background(), uploadBucket, key, bytes.NewReader(data), int64(len(data)), ""); err != nil {
		h.t.Fatal(err)
	}
	return h.queue(filename, action, target, toFormat, key)
}

// queue creates a job record for an input key.
func (h *harness) queue(filename string, action models.Action, target int, toFormat, key string) *models.Job {
	h.t.Helper()
	j := &models.Job{
		ID:        uuid.NewString(),
		Filename:  filename,
		Action:    action,
		Target:    target,
		ToFormat:  toFormat,
		InputPath: key,
		Status:    models.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Create(context.Background(), j); err != nil {
		h.t.Fatal(err)
	}
	return j
}

func (h *harness) runOnce() {
	h.t.Helper()
	if _, err := h.worker.RunOnce(context.Background(), logger.With("test")); err != nil {
		h.t.Fatal(err)
	}
}

func (h *harness) get(id string) *models.Job {
	h.t.Helper()
	j, err := h.store.Get(context.Background(), id)
	if err != nil {
		h.t.Fatal(err)
	}
	return j
}

func (h *harness) output(j *models.Job) []byte {
	h.t.Helper()
	rc, err := h.blobs.Download(context.Background(), outputBucket, j.OutputPath)
	if err != nil {
		h.t.Fatalf("output %s missing: %v", j.OutputPath, err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	return data
}

func (h *harness) assertStagingEmpty() {
	h.t.Helper()
	for _, dir := range []string{h.dirs.UploadDir, h.dirs.OutputDir} {
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			h.t.Errorf("%s should be empty, has %d entries", dir, len(entries))
		}
	}
}

func TestCompressImageUsesMappedQuality(t *testing.T) {
	h := newHarness(t)
	j := h.submit("photo.png", models.ActionCompress, 70, "", []byte("png"))
	h.runOnce()

	got := h.get(j.ID)
	if got.Status != models.StatusDone || got.Progress != 100 {
		t.Fatalf("Expected done/100, got %s/%d (%v)", got.Status, got.Progress, h.ledger.get(j.ID))
	}
	if got.OutputPath != j.ID+".png" {
		t.Errorf("OutputPath = %q, want %q", got.OutputPath, j.ID+".png")
	}
	cmds := h.runner.commands()
	if len(cmds) != 1 || !strings.HasPrefix(cmds[0], "magick ") || !strings.Contains(cmds[0], "-quality 25") {
		t.Errorf("unexpected commands: %v", cmds)
	}
	h.output(got)
	h.assertStagingEmpty()
}

func TestConvertVideoToWebM(t *testing.T) {
	h := newHarness(t)
	j := h.submit("movie.avi", models.ActionConvert, 70, "webm", []byte("avi"))
	h.runOnce()

	got := h.get(j.ID)
	if got.Status != models.StatusDone || got.OutputPath != j.ID+".webm" {
		t.Fatalf("unexpected record %+v (%v)", got, h.ledger.get(j.ID))
	}
	cmds := h.runner.commands()
	if len(cmds) != 1 || !strings.Contains(cmds[0], "libvpx-vp9") {
		t.Errorf("Expected a VP9 encode, got %v", cmds)
	}
}

func TestConvertCSVDefaultsToXLSX(t *testing.T) {
	h := newHarness(t)
	j := h.submit("report.csv", models.ActionConvert, 70, "", []byte("a,b\n1,2\n"))
	h.runOnce()

	got := h.get(j.ID)
	if got.Status != models.StatusDone || got.OutputPath != j.ID+".xlsx" {
		t.Fatalf("unexpected record %+v (%v)", got, h.ledger.get(j.ID))
	}
	if data := h.output(got); !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("XLSX output should be a zip container")
	}
}

func TestOfficeWithoutSofficeEndsInError(t *testing.T) {
	h := newHarness(t, "soffice")
	j := h.submit("slides.pptx", models.ActionConvert, 70, "pdf", []byte("pptx"))
	h.runOnce()

	got := h.get(j.ID)
	if got.Status != models.StatusError || got.Progress != 0 || got.OutputPath != "" {
		t.Fatalf("Expected error/0 without output, got %+v", got)
	}
	if !failures.Is(h.ledger.get(j.ID), failures.KindToolNotFound) {
		t.Errorf("Expected a tool-not-found failure, got %v", h.ledger.get(j.ID))
	}
	h.assertStagingEmpty()
}

func TestConvertMultiPagePDFReturnsArchive(t *testing.T) {
	h := newHarness(t)
	h.runner.fn = func(name string, args []string) error {
		prefix := args[len(args)-1]
		for i := 1; i <= 3; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte("page"), 0o644); err != nil {
				return err
			}
		}
		return nil
	}
	j := h.submit("doc.pdf", models.ActionConvert, 70, "png", []byte("%PDF"))
	h.runOnce()

	got := h.get(j.ID)
	if got.Status != models.StatusDone || got.OutputPath != j.ID+".zip" {
		t.Fatalf("unexpected record %+v (%v)", got, h.ledger.get(j.ID))
	}
	data := h.output(got)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 3 {
		t.Errorf("Expected 3 pages in the archive, got %d", len(zr.File))
	}
	h.assertStagingEmpty()
}

func TestCancelledWhileQueuedNeverRuns(t *testing.T) {
	h := newHarness(t)
	j := h.submit("photo.png", models.ActionCompress, 70, "", []byte("png"))
	if c, err := h.store.Cancel(context.Background(), j.ID); err != nil || c.Status != models.StatusCancelled {
		t.Fatalf("Cancel failed: %v %v", c, err)
	}
	h.runOnce()

	got := h.get(j.ID)
	if got.Status != models.StatusCancelled || got.OutputPath != "" {
		t.Errorf("Cancelled job changed to %+v", got)
	}
	if cmds := h.runner.commands(); len(cmds) != 0 {
		t.Errorf("No backend should run, got %v", cmds)
	}
}

// cancellingStore cancels the job right after the worker claims it, which
// is the window the checkpoint guards.
type cancellingStore struct {
	store.Store
}

func (s cancellingStore) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := s.Store.Claim(ctx, id)
	if ok {
		s.Store.Cancel(ctx, id)
	}
	return ok, err
}

func TestCancelDuringStartingWins(t *testing.T) {
	h := newHarness(t)
	h.worker.store = cancellingStore{h.store}
	j := h.submit("photo.png", models.ActionCompress, 70, "", []byte("png"))
	h.runOnce()

	if got := h.get(j.ID); got.Status != models.StatusCancelled {
		t.Errorf("Expected cancelled, got %s", got.Status)
	}
	if cmds := h.runner.commands(); len(cmds) != 0 {
		t.Errorf("No backend should run, got %v", cmds)
	}
}

func TestArchiveCompressIsByteIdentical(t *testing.T) {
	h := newHarness(t)
	data := []byte("PK\x03\x04 not really a zip but copied verbatim")
	j := h.submit("bundle.zip", models.ActionCompress, 10, "", data)
	h.runOnce()

	got := h.get(j.ID)
	if got.Status != models.StatusDone || got.OutputPath != j.ID+".zip" {
		t.Fatalf("unexpected record %+v", got)
	}
	if !bytes.Equal(h.output(got), data) {
		t.Error("Archive output must be byte-identical")
	}
}

func TestTextCompressKeepsCompoundExtension(t *testing.T) {
	h := newHarness(t)
	j := h.submit("notes.txt", models.ActionCompress, 40, "", []byte(strings.Repeat("hello ", 100)))
	h.runOnce()

	if got := h.get(j.ID); got.OutputPath != j.ID+".txt.zst" {
		t.Errorf("OutputPath = %q", got.OutputPath)
	}
}

func TestFailureDoesNotStopTheLoop(t *testing.T) {
	h := newHarness(t)
	bad := h.submit("thing.xyz", models.ActionConvert, 70, "", []byte("??"))
	good := h.submit("photo.png", models.ActionCompress, 70, "", []byte("png"))
	h.runOnce()

	if got := h.get(bad.ID); got.Status != models.StatusError {
		t.Errorf("Unsupported input should fail, got %s", got.Status)
	}
	if !failures.Is(h.ledger.get(bad.ID), failures.KindUnsupported) {
		t.Errorf("Expected unsupported failure, got %v", h.ledger.get(bad.ID))
	}
	if got := h.get(good.ID); got.Status != models.StatusDone {
		t.Errorf("Next job should still run, got %s", got.Status)
	}
}

func TestMissingUploadFails(t *testing.T) {
	h := newHarness(t)
	j := h.queue("photo.png", models.ActionCompress, 70, "", "missing_photo.png")
	h.runOnce()

	got := h.get(j.ID)
	if got.Status != models.StatusError {
		t.Errorf("Expected error, got %s", got.Status)
	}
	if !failures.Is(h.ledger.get(j.ID), failures.KindIO) {
		t.Errorf("Expected io failure, got %v", h.ledger.get(j.ID))
	}
}

func TestUnsafeInputPathFails(t *testing.T) {
	h := newHarness(t)
	j := h.queue("photo.png", models.ActionCompress, 70, "", "../photo.png")
	h.runOnce()

	if !failures.Is(h.ledger.get(j.ID), failures.KindValidation) {
		t.Errorf("Expected validation failure, got %v", h.ledger.get(j.ID))
	}
}

func TestLocalInputSkipsDownload(t *testing.T) {
	h := newHarness(t)
	j := h.submit("photo.png", models.ActionCompress, 70, "", []byte("png"))
	os.MkdirAll(h.dirs.UploadDir, 0o755)
	os.WriteFile(filepath.Join(h.dirs.UploadDir, j.InputPath), []byte("local"), 0o644)

	mirror := &recordingMirror{}
	h.worker.mirror = mirror
	h.runOnce()

	seen := mirror.statuses()
	for _, s := range seen {
		if s == models.StatusDownloading {
			t.Errorf("Local input must not be downloaded, saw %v", seen)
		}
	}
	if len(seen) == 0 || seen[len(seen)-1] != models.StatusDone {
		t.Errorf("Expected mirror to end at done, got %v", seen)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.worker.settings.Workers = 3
	j := h.submit("photo.png", models.ActionCompress, 70, "", []byte("png"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.worker.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for h.get(j.ID).Status != models.StatusDone && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := h.get(j.ID); got.Status != models.StatusDone {
		t.Errorf("Expected done, got %s", got.Status)
	}
	if n := len(h.runner.commands()); n != 1 {
		t.Errorf("Job should be encoded exactly once, got %d", n)
	}
}

type recordingMirror struct {
	mu   sync.Mutex
	seen []models.Status
}

func (m *recordingMirror) Put(_ context.Context, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, j.Status)
	return nil
}

func (m *recordingMirror) statuses() []models.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Status(nil), m.seen...)
}

func (m *recordingMirror) Get(context.Context, string) (*cache.Entry, error) { return nil, nil }
func (m *recordingMirror) Ping(context.Context) error                      { return nil }
func (m *recordingMirror) Close() error                                    { return nil }
