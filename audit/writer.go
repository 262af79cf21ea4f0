// Package audit keeps a durable, append-only trace of policy decisions
// per BSC for post-incident review (SPEC_FULL.md §4.E). The distilled
// spec does not require it — §7 only mandates the dropped_calls counter
// and structured logs — but a production NAT core keeps one anyway.
//
// Grounded on logs/writer.go's per-server file map, daily rotation, and
// retention cleanup, stripped of the SOL-specific ANSI cleaning and
// re-keyed by BSC name instead of server name.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Writer appends one line per policy decision to a daily log file under
// basePath/<bsc-name>/.
type Writer struct {
	basePath      string
	retentionDays int

	mu           sync.Mutex
	files        map[string]*os.File
	currentDay   map[string]string
}

func NewWriter(basePath string, retentionDays int) *Writer {
	return &Writer{
		basePath:      basePath,
		retentionDays: retentionDays,
		files:         make(map[string]*os.File),
		currentDay:    make(map[string]string),
	}
}

// Record implements nat.AuditLogger.
func (w *Writer) Record(bscName, verb, transactionID, outcome string) {
	line := fmt.Sprintf("%s verb=%s tx=%s outcome=%s\n",
		time.Now().UTC().Format(time.RFC3339), verb, transactionID, outcome)

	if err := w.write(bscName, line); err != nil {
		log.Errorf("audit: failed to write trace for bsc %q: %v", bscName, err)
	}
}

func (w *Writer) write(bscName, line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.getOrRotateFile(bscName)
	if err != nil {
		return err
	}
	_, err = f.WriteString(line)
	return err
}

func (w *Writer) getOrRotateFile(bscName string) (*os.File, error) {
	today := time.Now().UTC().Format("2006-01-02")
	if w.currentDay[bscName] == today {
		if f, ok := w.files[bscName]; ok {
			return f, nil
		}
	}

	if f, ok := w.files[bscName]; ok {
		f.Close()
		delete(w.files, bscName)
	}

	dir := filepath.Join(w.basePath, bscName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	path := filepath.Join(dir, today+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	w.files[bscName] = f
	w.currentDay[bscName] = today
	return f, nil
}

// Cleanup removes audit logs older than the configured retention window.
func (w *Writer) Cleanup() {
	if w.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)

	entries, err := os.ReadDir(w.basePath)
	if err != nil {
		return
	}

	for _, bscDir := range entries {
		if !bscDir.IsDir() {
			continue
		}
		dir := filepath.Join(w.basePath, bscDir.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(dir, f.Name())
				os.Remove(path)
				log.Infof("audit: removed expired trace log %s", path)
			}
		}
	}
}

// Close flushes and closes all open files.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.files {
		f.Close()
	}
	w.files = make(map[string]*os.File)
}
