package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"transmute/config"
	"transmute/failures"
	"transmute/logger"
)

const (
	failureRetention = 30 * 24 * time.Hour
	stagingRetention = 24 * time.Hour
	cleanupInterval  = 24 * time.Hour
)

// CleanupCmd runs one cleanup pass and exits.
func CleanupCmd(cfg *config.Config) *cobra.Command {
	var maxAge time.Duration
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune old failure records and abandoned working files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := failures.Open(cfg.FailuresDB)
			if err != nil {
				return err
			}
			defer ledger.Close()
			runCleanup(ledger, maxAge, time.Now(), cfg.UploadDir, cfg.OutputDir)
			return nil
		},
	}
	cleanupCmd.Flags().DurationVar(&maxAge, "max-age", failureRetention, "delete failure records older than this")
	return cleanupCmd
}

// cleanupRoutine periodically prunes the failure ledger and working dirs.
func cleanupRoutine(ctx context.Context, ledger *failures.Ledger, dirs ...string) {
	logger.Info("Cleanup routine started - will run every 24 hours")
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case now := <-ticker.C:
			logger.Info("Running scheduled cleanup of old records")
			runCleanup(ledger, failureRetention, now, dirs...)
			logger.Info("Scheduled cleanup completed")
		}
	}
}

func runCleanup(ledger *failures.Ledger, maxAge time.Duration, now time.Time, dirs ...string) {
	logger.Debugf("Cleaning up failure records older than %v", maxAge)
	if n, err := ledger.CleanupOldRecords(maxAge); err != nil {
		logger.Errorf("Failed to cleanup old failure records: %v", err)
	} else {
		logger.Infof("Removed %d old failure records", n)
	}

	for _, dir := range dirs {
		n, err := pruneStale(dir, now.Add(-stagingRetention))
		if err != nil {
			logger.Errorf("Failed to prune %s: %v", dir, err)
			continue
		}
		if n > 0 {
			logger.Infof("Removed %d abandoned entries from %s", n, dir)
		}
	}
}

// pruneStale removes top-level entries of dir last modified before cutoff.
// Workers delete their files on completion, so anything this old was left
// behind by a crash.
func pruneStale(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			logger.Warnf("Could not remove %s: %v", e.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}
