//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package accesslog holds access log streams used by tests of the engine.
package accesslog

import (
	"errors"
	"sync"

	"github.com/manetu/dataguard/pkg/core/accesslog"
	"github.com/manetu/dataguard/pkg/events"
)

// ErrStreamClosed is returned by Send once the stream was closed.
var ErrStreamClosed = errors.New("access log stream closed")

// ChannelFactory hands every stream the same channel.
type ChannelFactory struct {
	ch chan *events.AccessRecord
}

// ChannelStream delivers access records to a channel so tests can assert on them.
type ChannelStream struct {
	mu     sync.Mutex
	ch     chan *events.AccessRecord
	closed bool
}

// NewChannelLogger creates a factory whose streams write to ch.  The first stream closed
// closes ch.
func NewChannelLogger(ch chan *events.AccessRecord) accesslog.Factory {
	return &ChannelFactory{ch: ch}
}

// NewStream implements accesslog.Factory.
func (f *ChannelFactory) NewStream() (accesslog.Stream, error) {
	return &ChannelStream{ch: f.ch}, nil
}

// Send delivers the record, blocking while the channel is full.
func (s *ChannelStream) Send(m *events.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ch == nil {
		return ErrStreamClosed
	}
	s.ch <- m
	return nil
}

// Close closes the channel.  Further calls do nothing.
func (s *ChannelStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.ch != nil {
		close(s.ch)
	}
}

var _ accesslog.Stream = &ChannelStream{}
