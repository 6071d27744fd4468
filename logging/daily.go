package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	filePrefix = "bot-"
	fileSuffix = ".log"
	dayLayout  = "2006-01-02"
)

// DailyFile is an io.Writer appending to DIR/bot-YYYY-MM-DD.log, switching
// files when the local date changes.
type DailyFile struct {
	Dir           string
	RetentionDays int

	now func() time.Time

	mu  sync.Mutex
	f   *os.File
	day string
}

// OpenDaily creates dir if needed, opens today's file and removes expired ones.
func OpenDaily(dir string, retentionDays int) (*DailyFile, error) {
	d := &DailyFile{Dir: dir, RetentionDays: retentionDays, now: time.Now}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if err := d.Rotate(); err != nil {
		return nil, err
	}
	if _, err := d.Cleanup(); err != nil {
		slog.Warn("log cleanup failed", slog.Any("err", err), slog.String("component", "logging"))
	}
	return d, nil
}

// Path returns the file for the given day.
func (d *DailyFile) Path(t time.Time) string {
	return filepath.Join(d.Dir, filePrefix+t.Format(dayLayout)+fileSuffix)
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.day != d.now().Format(dayLayout) {
		if err := d.rotateLocked(); err != nil {
			return 0, err
		}
	}
	return d.f.Write(p)
}

// Rotate switches to the current day's file.
func (d *DailyFile) Rotate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rotateLocked()
}

func (d *DailyFile) rotateLocked() error {
	now := d.now()
	day := now.Format(dayLayout)
	if d.f != nil && d.day == day {
		return nil
	}
	f, err := os.OpenFile(d.Path(now), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if d.f != nil {
		_ = d.f.Close()
	}
	d.f, d.day = f, day
	return nil
}

// Cleanup deletes bot-*.log files dated more than RetentionDays ago. The
// date comes from the file name, not its mtime.
func (d *DailyFile) Cleanup() (removed int, err error) {
	if d.RetentionDays <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return 0, err
	}
	now := d.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	cutoff := today.AddDate(0, 0, -d.RetentionDays)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		day, perr := time.ParseInLocation(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), time.Local)
		if perr != nil || !day.Before(cutoff) {
			continue
		}
		if rerr := os.Remove(filepath.Join(d.Dir, name)); rerr != nil {
			err = rerr
			continue
		}
		removed++
	}
	return removed, err
}

// Run rotates and cleans up at each local midnight until ctx ends.
func (d *DailyFile) Run(ctx context.Context) {
	logger := slog.Default().With(slog.String("component", "logging"))
	for {
		now := d.now()
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 1, 0, now.Location())
		t := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err := d.Rotate(); err != nil {
			logger.Error("log rotation failed", slog.Any("err", err))
		}
		if n, err := d.Cleanup(); err != nil {
			logger.Warn("log cleanup failed", slog.Any("err", err))
		} else if n > 0 {
			logger.Info("removed old log files", slog.Int("count", n))
		}
	}
}

// Close closes the current file.
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	d.day = ""
	return err
}
