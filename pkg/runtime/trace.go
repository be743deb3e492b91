package runtime

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/soralis-ops/sortie/pkg/executor"
	"github.com/soralis-ops/sortie/pkg/schema"
)

// TraceEvent is one line of the JSONL run trace.
type TraceEvent struct {
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id"`
	CommandType string    `json:"command_type"`
	Cmd         string    `json:"cmd,omitempty"`
	Stdout      string    `json:"stdout"`
	Returncode  int       `json:"returncode"`
}

// TraceWriter appends command results to a JSONL trace file. It implements
// executor.Sink, so the engine feeds it every classified result.
type TraceWriter struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
}

// NewTraceWriter creates a trace writer that appends to the given file.
func NewTraceWriter(path, runID string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &TraceWriter{
		runID:  runID,
		file:   f,
		writer: w,
		enc:    json.NewEncoder(w),
	}, nil
}

// Emit implements executor.Sink. Events are flushed and synced at command
// boundaries so a crashed run leaves a complete trace.
func (tw *TraceWriter) Emit(cmd schema.Command, res *executor.Result) error {
	event := TraceEvent{
		Type:        "command_result",
		Timestamp:   time.Now(),
		RunID:       tw.runID,
		CommandType: cmd.Base().Type,
		Cmd:         cmd.Base().Cmd,
		Stdout:      res.Stdout,
		Returncode:  res.Returncode,
	}
	if err := tw.enc.Encode(event); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	if err := tw.writer.Flush(); err != nil {
		return err
	}
	return tw.file.Close()
}
