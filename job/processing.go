package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"transmute/blob"
	"transmute/detect"
	"transmute/failures"
	"transmute/logger"
	"transmute/models"
	"transmute/router"
)

// errCancelled ends a job that was cancelled before work started.
var errCancelled = errors.New("job cancelled")

// processJob runs one job end to end. It reports whether this worker
// claimed the job.
func (w *Worker) processJob(ctx context.Context, j *models.Job, log logger.Scoped) bool {
	ok, err := w.store.Claim(ctx, j.ID)
	if err != nil {
		log.Errorf("Failed to claim job: %v", err)
		return false
	}
	if !ok {
		log.Debugf("Job already claimed or cancelled, skipping")
		return false
	}
	j.Status, j.Progress = models.StatusStarting, models.ProgressStarting
	w.mirrorJob(ctx, j, log)
	log.Infof("Processing %s (action=%s target=%d to_format=%q)", j.Filename, j.Action, j.Target, j.ToFormat)

	stagingDir := filepath.Join(w.settings.OutputDir, j.ID)
	localInput, err := w.localInputPath(j)
	if err == nil {
		err = w.run(ctx, j, localInput, stagingDir, log)
	}

	switch {
	case errors.Is(err, errCancelled):
		log.Infof("Job was cancelled before work started")
	case err != nil:
		w.fail(ctx, j, err, localInput, stagingDir, log)
	default:
		log.Infof("Successfully processed job, output %s", j.OutputPath)
	}
	return true
}

// localInputPath maps the input key into the upload cache.
func (w *Worker) localInputPath(j *models.Job) (string, error) {
	key := j.InputPath
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", failures.Errorf(failures.KindValidation, "input", "invalid input path %q", key)
	}
	return filepath.Join(w.settings.UploadDir, key), nil
}

// run performs the pipeline after the claim.
func (w *Worker) run(ctx context.Context, j *models.Job, localInput, stagingDir string, log logger.Scoped) error {
	// Cancellation checkpoint. The transition below is a compare-and-swap
	// from Starting, so a cancel landing after this read still wins.
	cur, err := w.store.Get(ctx, j.ID)
	if err != nil {
		return failures.New(failures.KindIO, "checkpoint", err)
	}
	if cur.Status == models.StatusCancelled {
		return errCancelled
	}

	working := models.StatusCompressing
	if j.Action == models.ActionConvert {
		working = models.StatusConverting
	}

	_, statErr := os.Stat(localInput)
	needDownload := errors.Is(statErr, os.ErrNotExist)
	if statErr != nil && !needDownload {
		return failures.New(failures.KindIO, "input", statErr)
	}

	if needDownload {
		if err := w.advance(ctx, j, models.StatusStarting, models.StatusDownloading, models.ProgressDownloading, log); err != nil {
			return err
		}
		log.Infof("Downloading %s from %s", j.InputPath, w.settings.UploadBucket)
		if err := blob.DownloadToFile(ctx, w.blobs, w.settings.UploadBucket, j.InputPath, localInput); err != nil {
			return failures.New(failures.KindIO, "download", err)
		}
		if err := w.advance(ctx, j, models.StatusDownloading, working, models.ProgressWorking, log); err != nil {
			return err
		}
	} else if err := w.advance(ctx, j, models.StatusStarting, working, models.ProgressWorking, log); err != nil {
		return err
	}

	route, err := w.plan(j, localInput)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return failures.New(failures.KindIO, "stage", err)
	}

	planned := filepath.Join(stagingDir, j.ID+route.Ext)
	log.Infof("Running %s into %s", route.Op, filepath.Base(planned))
	produced, err := w.encoder.Encode(ctx, route.Op, localInput, planned, route.Params)
	if err != nil {
		return err
	}

	if err := os.Remove(localInput); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to remove local input %s: %v", localInput, err)
	}

	if err := w.advance(ctx, j, working, models.StatusUploading, models.ProgressUploading, log); err != nil {
		return err
	}
	key := j.ID + outputExt(j.ID, produced)
	if err := blob.UploadFile(ctx, w.blobs, w.settings.OutputBucket, key, produced); err != nil {
		return failures.New(failures.KindIO, "upload", err)
	}

	if err := os.RemoveAll(stagingDir); err != nil {
		log.Warnf("Failed to remove staging directory %s: %v", stagingDir, err)
	}

	done, err := w.store.Update(ctx, j.ID, models.DonePatch(key))
	if err != nil {
		return failures.New(failures.KindInternal, "finalize", err)
	}
	*j = *done
	w.mirrorJob(ctx, j, log)
	return nil
}

// plan chooses the operation for the job's action.
func (w *Worker) plan(j *models.Job, input string) (router.Route, error) {
	class := w.detector.Classify(input)
	ext := detect.Ext(input)

	switch j.Action {
	case models.ActionCompress:
		route := router.Compress(class, ext, j.Target)
		logger.Debugf("compress plan for %s (%s): %s", j.ID, class, route.Op)
		return route, nil
	case models.ActionConvert:
		return router.Convert(router.Request{Class: class, Ext: ext, Format: models.NormalizeFormat(j.ToFormat)})
	}
	return router.Route{}, failures.Errorf(failures.KindValidation, "plan", "invalid action %q", j.Action)
}

// advance moves the job from one status to the next with compare-and-swap.
// Losing the swap out of Starting means a cancel got there first.
func (w *Worker) advance(ctx context.Context, j *models.Job, from, to models.Status, progress int, log logger.Scoped) error {
	ok, err := w.store.Advance(ctx, j.ID, from, models.StatusPatch(to, progress))
	if err != nil {
		return failures.New(failures.KindIO, "status", err)
	}
	if !ok {
		cur, err := w.store.Get(ctx, j.ID)
		if err == nil && cur.Status == models.StatusCancelled {
			return errCancelled
		}
		return failures.Errorf(failures.KindInternal, "status", "job left %q unexpectedly", from)
	}
	j.Status, j.Progress = to, progress
	w.mirrorJob(ctx, j, log)
	return nil
}

// fail marks the job as error, records why and removes local files.
func (w *Worker) fail(ctx context.Context, j *models.Job, cause error, localInput, stagingDir string, log logger.Scoped) {
	log.Errorf("Job failed (%s): %v", failures.KindOf(cause), cause)

	rec, err := w.store.Update(ctx, j.ID, models.StatusPatch(models.StatusError, 0))
	if err != nil {
		log.Errorf("Failed to mark job as error: %v", err)
	} else {
		*j = *rec
		w.mirrorJob(ctx, j, log)
	}

	if w.ledger != nil {
		if err := w.ledger.Record(j.ID, cause, j); err != nil {
			log.Errorf("Failed to store failure record: %v", err)
		}
	}

	if localInput != "" {
		if err := os.Remove(localInput); err != nil && !os.IsNotExist(err) {
			log.Warnf("Failed to remove local input %s: %v", localInput, err)
		}
	}
	if err := os.RemoveAll(stagingDir); err != nil {
		log.Warnf("Failed to remove staging directory %s: %v", stagingDir, err)
	}
}

// outputExt is everything after the job id in the produced file name, so
// compound extensions such as ".txt.zst" survive.
func outputExt(id, produced string) string {
	base := filepath.Base(produced)
	if strings.HasPrefix(base, id) && len(base) > len(id) {
		return base[len(id):]
	}
	return filepath.Ext(base)
}
