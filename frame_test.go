package clamd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/rand"
	"testing"
)

// decodeFrames parses wire output back into the payload, the number of data
// frames and the number of terminators seen.
func decodeFrames(t *testing.T, wire []byte) ([]byte, int, int) {
	t.Helper()
	var payload bytes.Buffer
	frames, terminators := 0, 0
	for len(wire) > 0 {
		if len(wire) < frameHeaderSize {
			t.Fatalf("truncated header: %d bytes left", len(wire))
		}
		n := int(binary.BigEndian.Uint32(wire[:frameHeaderSize]))
		wire = wire[frameHeaderSize:]
		if n == 0 {
			terminators++
			if len(wire) != 0 {
				t.Fatalf("%d bytes after terminator", len(wire))
			}
			break
		}
		if len(wire) < n {
			t.Fatalf("truncated frame: want %d bytes, have %d", n, len(wire))
		}
		payload.Write(wire[:n])
		wire = wire[n:]
		frames++
	}
	return payload.Bytes(), frames, terminators
}

func never() bool { return false }

func TestPumpRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		name      string
		size      int
		chunkSize int
		frames    int
	}{
		{"empty", 0, 16, 0},
		{"single byte", 1, 16, 1},
		{"exact chunk", 16, 16, 1},
		{"chunk plus one", 17, 16, 2},
		{"many chunks", 10_000, 64, 157},
		{"default chunk", 200_000, defaultChunkSize, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			rng.Read(data)

			var wire bytes.Buffer
			fw := newFrameWriter(&wire)
			exhausted, err := pump(bytes.NewReader(data), make([]byte, tt.chunkSize), fw, never, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !exhausted {
				t.Error("source should be exhausted")
			}

			got, frames, terminators := decodeFrames(t, wire.Bytes())
			if !bytes.Equal(got, data) {
				t.Error("decoded payload differs from source")
			}
			if frames != tt.frames {
				t.Errorf("frames = %d, want %d", frames, tt.frames)
			}
			if terminators != 1 {
				t.Errorf("terminators = %d, want 1", terminators)
			}
			if fw.Sent() != int64(wire.Len()) {
				t.Errorf("Sent() = %d, want %d", fw.Sent(), wire.Len())
			}
		})
	}
}

// zeroReader yields empty reads before its data.
type zeroReader struct {
	empties int
	data    []byte
}

func (z *zeroReader) Read(p []byte) (int, error) {
	if z.empties > 0 {
		z.empties--
		return 0, nil
	}
	if len(z.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, z.data)
	z.data = z.data[n:]
	return n, nil
}

func TestPumpSkipsEmptyReads(t *testing.T) {
	var wire bytes.Buffer
	_, err := pump(&zeroReader{empties: 3, data: []byte("abc")}, make([]byte, 8), newFrameWriter(&wire), never, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{0, 0, 0, 3, 'a', 'b', 'c', 0, 0, 0, 0}
	if !bytes.Equal(wire.Bytes(), want) {
		t.Errorf("wire = %v, want %v", wire.Bytes(), want)
	}
}

func TestFrameWriter(t *testing.T) {
	t.Run("empty chunk writes nothing", func(t *testing.T) {
		var wire bytes.Buffer
		fw := newFrameWriter(&wire)
		if err := fw.WriteFrame(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if wire.Len() != 0 {
			t.Errorf("wrote %d bytes for an empty chunk", wire.Len())
		}
	})

	t.Run("terminator once", func(t *testing.T) {
		var wire bytes.Buffer
		fw := newFrameWriter(&wire)
		if err := fw.Terminate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := fw.Terminate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(wire.Bytes(), []byte{0, 0, 0, 0}) {
			t.Errorf("wire = %v", wire.Bytes())
		}
	})

	t.Run("one write per frame", func(t *testing.T) {
		w := &recordingWriter{}
		fw := newFrameWriter(w)
		for _, chunk := range []string{"first chunk", "2nd", "third and longest chunk"} {
			if err := fw.WriteFrame([]byte(chunk)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if err := fw.Terminate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(w.writes) != 4 {
			t.Fatalf("got %d writes, want 4", len(w.writes))
		}
		if got := string(w.writes[1]); got != "\x00\x00\x00\x032nd" {
			t.Errorf("second write = %q", got)
		}
		if fw.Sent() != int64(3*frameHeaderSize+37+frameHeaderSize) {
			t.Errorf("Sent() = %d", fw.Sent())
		}
	})

	t.Run("frame after terminator", func(t *testing.T) {
		var wire bytes.Buffer
		fw := newFrameWriter(&wire)
		_ = fw.Terminate()
		err := fw.WriteFrame([]byte("late"))
		if !IsProtocolError(err) {
			t.Errorf("expected protocol error, got %v", err)
		}
	})
}

// recordingWriter keeps a copy of every Write call.
type recordingWriter struct {
	writes [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, bytes.Clone(p))
	return len(p), nil
}

type countingReader struct {
	reads int
	r     io.Reader
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

func TestPumpStopsAfterReply(t *testing.T) {
	src := &countingReader{r: bytes.NewReader(make([]byte, 100))}
	var wire bytes.Buffer
	calls := 0
	replied := func() bool {
		calls++
		return calls > 2
	}

	exhausted, err := pump(src, make([]byte, 10), newFrameWriter(&wire), replied, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exhausted {
		t.Error("source must not be reported exhausted after an early reply")
	}
	if src.reads != 2 {
		t.Errorf("reads = %d, want 2", src.reads)
	}
	_, frames, terminators := decodeFrames(t, wire.Bytes())
	if frames != 2 || terminators != 0 {
		t.Errorf("frames = %d, terminators = %d; want 2, 0", frames, terminators)
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestPumpSourceError(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := pump(failingReader{err: boom}, make([]byte, 8), newFrameWriter(io.Discard), never, "/data/x")
	if !IsFileSystemError(err) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("error should wrap the source error")
	}
	var e *Error
	if errors.As(err, &e) && e.Path != "/data/x" {
		t.Errorf("Path = %q, want %q", e.Path, "/data/x")
	}
}
