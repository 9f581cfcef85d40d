package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RunLog writes one human-readable log file per pipeline run. A nil
// *RunLog discards everything.
type RunLog struct {
	dir string
	mu  sync.Mutex
}

// NewRunLog creates dir if needed.
func NewRunLog(dir string) (*RunLog, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log dir: %w", err)
	}
	return &RunLog{dir: dir}, nil
}

// Path returns the log file of runID.
func (l *RunLog) Path(runID string) string {
	return filepath.Join(l.dir, fmt.Sprintf("run_%s.log", runID))
}

// Start truncates the log file of runID, starting a fresh log.
func (l *RunLog) Start(runID, imageRef string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.Path(runID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Msg("failed to start run log")
		return
	}
	defer f.Close()

	header := fmt.Sprintf("=== Listing Run ===\nRun: %s\nImage: %s\nStarted: %s\n\n",
		runID, imageRef, time.Now().Format("2006-01-02 15:04:05"))
	f.WriteString(header)
}

func (l *RunLog) append(runID, prefix, msg string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.Path(runID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Msg("failed to write run log")
		return
	}
	defer f.Close()

	f.WriteString(fmt.Sprintf("[%s] %s %s\n", time.Now().Format("15:04:05"), prefix, msg))
}

// User logs a user action.
func (l *RunLog) User(runID, format string, args ...any) {
	l.append(runID, "USER ", fmt.Sprintf(format, args...))
}

// State logs a stage transition.
func (l *RunLog) State(runID, format string, args ...any) {
	l.append(runID, "STATE", fmt.Sprintf(format, args...))
}

// API logs a remote call.
func (l *RunLog) API(runID, format string, args ...any) {
	l.append(runID, "API  ", fmt.Sprintf(format, args...))
}

// Error logs a failure.
func (l *RunLog) Error(runID, format string, args ...any) {
	l.append(runID, "ERROR", fmt.Sprintf(format, args...))
}
