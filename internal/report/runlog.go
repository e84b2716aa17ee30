package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record is one per-instruction outcome in the run log.
type Record struct {
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	Format       string    `json:"format"`
	Symbol       string    `json:"symbol"`
	Strategy     string    `json:"strategy"`
	Quantity     int       `json:"quantity"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	OrderOutcome string    `json:"order_outcome,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// RunLog appends NDJSON records, one line per instruction processed.
type RunLog struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewRunLog(path string, runID string) (*RunLog, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &RunLog{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (r *RunLog) RunID() string {
	return r.runID
}

func (r *RunLog) Append(record Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.RunID = r.runID
	payload, err := json.Marshal(record)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal run record: %v\n", err)
		return
	}
	if _, err := r.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write run record: %v\n", err)
		return
	}
	if err := r.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush run log: %v\n", err)
	}
}

func (r *RunLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Flush(); err != nil {
		_ = r.file.Close()
		return err
	}
	return r.file.Close()
}
