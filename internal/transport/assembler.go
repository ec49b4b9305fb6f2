package transport

import (
	"bytes"
	"errors"
)

// ErrFrameTooLarge is returned when a message grows past the read limit.
var ErrFrameTooLarge = errors.New("frame exceeds read limit")

// Assembler concatenates message fragments and releases a frame only once
// the final fragment has been written.
type Assembler struct {
	buf   bytes.Buffer
	limit int64
}

// NewAssembler returns an assembler bounded by limit bytes; limit <= 0
// disables the bound.
func NewAssembler(limit int64) *Assembler {
	return &Assembler{limit: limit}
}

// Write appends a fragment. When final is true the complete frame is
// returned and the assembler is reset.
func (a *Assembler) Write(p []byte, final bool) ([]byte, error) {
	if a.limit > 0 && int64(a.buf.Len()+len(p)) > a.limit {
		a.buf.Reset()
		return nil, ErrFrameTooLarge
	}
	a.buf.Write(p)
	if !final {
		return nil, nil
	}
	out := make([]byte, a.buf.Len())
	copy(out, a.buf.Bytes())
	a.buf.Reset()
	return out, nil
}

// Pending reports how many bytes are buffered for an incomplete frame.
func (a *Assembler) Pending() int { return a.buf.Len() }
