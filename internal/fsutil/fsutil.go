// Package fsutil provides file and path helpers shared by the bootstrap tools.
//
// It covers candidate directory discovery, idempotent directory creation, and
// human-readable formatting of sizes and durations for reports.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const defaultDirPermissions = 0o750

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

// Error message and format string constants.
const (
	errFmtFailedToCreateDir   = "failed to create directory %s: %w"
	errFmtResolveAbsolutePath = "could not resolve absolute path for %q: %w"
)

// ErrNoCandidate is returned when none of the candidate directories exists.
var ErrNoCandidate = errors.New("no candidate directory exists")

// EnsureDir ensures a directory exists at the given path, creating it and any
// parents if needed. Calling it on an existing directory is a no-op.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, err)
	}

	return nil
}

// EnsureAbsDir creates path if needed and returns its absolute form.
func EnsureAbsDir(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf(errFmtResolveAbsolutePath, path, err)
	}

	err = EnsureDir(absPath)
	if err != nil {
		return "", err
	}

	return absPath, nil
}

// isDir reports whether path is an existing directory. Any stat error,
// including permission and not-a-directory errors, means it is not.
func isDir(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}

// FirstExistingDir returns the first candidate that is an existing directory,
// preserving the caller's priority order. Unreadable candidates are skipped.
func FirstExistingDir(candidates []string) (string, error) {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}

		if isDir(candidate) {
			return candidate, nil
		}
	}

	return "", ErrNoCandidate
}

// FormatDuration formats a clip duration for the console summary, as "45.2s",
// "5m 30.5s" or "1h 15m".
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()

	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats the size of a written clip for the console summary,
// as "1.2 GB", "500.5 MB" and so on.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}
