package bench

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
)

// Sink receives rows in copy order.
type Sink interface {
	Write(ctx context.Context, row Row) error
	Close() error
}

// Mode selects what happens to an existing CSV file.
type Mode string

const (
	ModeOverwrite Mode = "overwrite"
	ModeAppend    Mode = "append"
)

// ErrInvalidMode is returned for an unknown output mode.
var ErrInvalidMode = errors.New("invalid output mode")

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOverwrite, ModeAppend:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// CSVSink writes rows to a CSV file, flushing after each row so an aborted
// run keeps what it measured.
type CSVSink struct {
	f *os.File
	w *csv.Writer
}

// NewCSVSink opens path. Overwrite truncates the file; append keeps its rows
// and writes the header only if the file is new or empty.
func NewCSVSink(path string, mode Mode) (*CSVSink, error) {
	flags := os.O_CREATE | os.O_WRONLY
	switch mode {
	case ModeOverwrite:
		flags |= os.O_TRUNC
	case ModeAppend:
		flags |= os.O_APPEND
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv: %w", err)
	}

	s := &CSVSink{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.flush(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Write implements Sink.
func (s *CSVSink) Write(_ context.Context, row Row) error {
	return s.flush(row.Record())
}

func (s *CSVSink) flush(rec []string) error {
	if err := s.w.Write(rec); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *CSVSink) Close() error {
	s.w.Flush()
	return errors.Join(s.w.Error(), s.f.Close())
}

// MultiSink fans rows out to several sinks.
type MultiSink []Sink

// Write implements Sink. It stops at the first failing sink.
func (m MultiSink) Write(ctx context.Context, row Row) error {
	for _, s := range m {
		if err := s.Write(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
