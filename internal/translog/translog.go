// Package translog writes the per-run session log (§6 "Persisted state":
// session logs under <repo>/.ephraim/logs/ephraim_<timestamp>.log). It is a
// plain append-only io.Writer, composed with stdout via io.MultiWriter
// rather than a structured logging library — the teacher's own debug
// artifact (internal/agent.ExecLogger) is likewise a hand-rolled file
// writer, not a logging framework, for the same reason: this is a
// human-readable transcript of one run, not a service's operational log
// stream.
package translog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Log is an append-only session transcript file.
type Log struct {
	f    *os.File
	Path string
}

// Open creates <repoRoot>/.ephraim/logs/ephraim_<timestamp>.log, creating
// parent directories as needed.
func Open(repoRoot string) (*Log, error) {
	dir := filepath.Join(repoRoot, ".ephraim", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("ephraim_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &Log{f: f, Path: path}, nil
}

func (l *Log) Write(p []byte) (int, error) { return l.f.Write(p) }

func (l *Log) Close() error { return l.f.Close() }
