//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/manetu/dataguard/pkg/events"
)

// AccessLogOptions tunes the io.Writer stream.
type AccessLogOptions struct {
	// PrettyPrint enables indented multi-line JSON output.
	// When false (default), output is compact single-line JSON.
	PrettyPrint bool
}

// IoWriterFactory creates streams writing JSON lines to an io.Writer.
type IoWriterFactory struct {
	writer  io.Writer
	options AccessLogOptions
}

// IoWriterStream writes one JSON document per record.
type IoWriterStream struct {
	mu      sync.Mutex
	writer  io.Writer
	options AccessLogOptions
}

// NewStdoutFactory writes records to stdout.
func NewStdoutFactory() Factory {
	return NewIoWriterFactory(os.Stdout)
}

// NewIoWriterFactory writes compact records to w.
func NewIoWriterFactory(w io.Writer) Factory {
	return NewIoWriterFactoryWithOptions(w, AccessLogOptions{})
}

// NewIoWriterFactoryWithOptions writes records to w using opts.
func NewIoWriterFactoryWithOptions(w io.Writer, opts AccessLogOptions) Factory {
	return &IoWriterFactory{
		writer:  w,
		options: opts,
	}
}

// NewStream implements Factory.
func (f *IoWriterFactory) NewStream() (Stream, error) {
	return newStream(f.writer, f.options), nil
}

func newStream(w io.Writer, opts AccessLogOptions) Stream {
	return &IoWriterStream{
		writer:  w,
		options: opts,
	}
}

// Send implements Stream.  Records from concurrent decisions are never interleaved.
func (s *IoWriterStream) Send(record *events.AccessRecord) error {
	if record == nil {
		return nil
	}

	var output []byte
	var err error
	if s.options.PrettyPrint {
		output, err = json.MarshalIndent(record, "", "  ")
	} else {
		output, err = json.Marshal(record)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.writer, string(output))
	return err
}

// Close implements Stream.
func (s *IoWriterStream) Close() {}
