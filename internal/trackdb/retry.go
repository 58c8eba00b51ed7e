package trackdb

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxRetries       = 5
	initialRetryWait = 10 * time.Millisecond
)

// isSQLiteBusy reports whether err is a SQLite busy/locked error that is
// worth retrying.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying with exponential backoff when it fails with a
// SQLite busy error. Other errors are returned immediately. WAL mode makes
// these collisions rare but reconstruction writers and API readers can still
// race on the write lock.
func retryOnBusy(fn func() error) error {
	wait := initialRetryWait
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(wait)
			wait *= 2
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
	}
	return fmt.Errorf("database busy after %d attempts: %w", maxRetries, err)
}
