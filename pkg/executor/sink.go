package executor

import (
	"fmt"
	"io"

	"github.com/soralis-ops/sortie/pkg/schema"
)

// Sink receives every classified command result. Implementations include
// the console writer below and the runtime's JSONL trace writer.
type Sink interface {
	Emit(cmd schema.Command, res *Result) error
}

// ConsoleSink writes command results in the playbook's human-readable form.
type ConsoleSink struct {
	W io.Writer
}

// Emit implements Sink.
func (s *ConsoleSink) Emit(cmd schema.Command, res *Result) error {
	_, err := fmt.Fprintf(s.W, "Command: %s\n%s\n", cmd.Base().Cmd, res.Stdout)
	return err
}

// Fanout returns a Sink that emits to every given sink in order and reports
// the first failure.
func Fanout(sinks ...Sink) Sink {
	return fanoutSink(sinks)
}

type fanoutSink []Sink

func (f fanoutSink) Emit(cmd schema.Command, res *Result) error {
	for _, s := range f {
		if err := s.Emit(cmd, res); err != nil {
			return err
		}
	}
	return nil
}

// nopSink is used when an engine is constructed without a sink.
type nopSink struct{}

func (nopSink) Emit(schema.Command, *Result) error { return nil }
