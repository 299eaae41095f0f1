package clamd

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// frameHeaderSize is the length of the big-endian uint32 prefix on every frame.
const frameHeaderSize = 4

// frameWriter puts chunks on the wire in the INSTREAM format: a uint32
// big-endian length followed by the payload, ended by a zero-length frame.
type frameWriter struct {
	w          io.Writer
	buf        []byte
	sent       int64
	terminated bool
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: w}
}

// WriteFrame writes one data frame with a single Write. Empty chunks are
// skipped so a zero length prefix only ever marks the end of the stream.
func (f *frameWriter) WriteFrame(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if f.terminated {
		return NewProtocolError("frame written after stream terminator", nil)
	}
	if uint64(len(chunk)) > math.MaxUint32 {
		return NewProtocolError(fmt.Sprintf("chunk of %d bytes exceeds maximum frame length", len(chunk)), nil)
	}

	f.buf = binary.BigEndian.AppendUint32(f.buf[:0], uint32(len(chunk)))
	f.buf = append(f.buf, chunk...)

	n, err := f.w.Write(f.buf)
	f.sent += int64(n)
	return err
}

// Terminate writes the zero-length frame. It is a no-op when called twice.
func (f *frameWriter) Terminate() error {
	if f.terminated {
		return nil
	}
	var zero [frameHeaderSize]byte
	n, err := f.w.Write(zero[:])
	f.sent += int64(n)
	if err != nil {
		return err
	}
	f.terminated = true
	return nil
}

// Sent returns the number of bytes written so far, headers included.
func (f *frameWriter) Sent() int64 {
	return f.sent
}
