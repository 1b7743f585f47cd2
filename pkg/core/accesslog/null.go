//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"github.com/manetu/dataguard/pkg/events"
)

// NullFactory creates streams that discard every record.
type NullFactory struct {
}

// NullStream discards records.
type NullStream struct {
}

// NewNullFactory creates a factory for discarding streams.
func NewNullFactory() Factory {
	return &NullFactory{}
}

// NewStream implements Factory.
func (f *NullFactory) NewStream() (Stream, error) {
	return &NullStream{}, nil
}

// Send implements Stream.
func (s *NullStream) Send(_ *events.AccessRecord) error {
	return nil
}

// Close implements Stream.
func (s *NullStream) Close() {}
