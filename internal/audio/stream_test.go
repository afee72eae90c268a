package audio

import (
	"io"
	"sync/atomic"
	"testing"
)

func TestStreamReadsSequentially(t *testing.T) {
	var paused atomic.Bool
	data := []byte{1, 2, 3, 4, 5, 6}
	s := newStream(data, &paused)

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	if n != 4 || err != nil {
		t.Fatalf("first read = (%d, %v), want (4, nil)", n, err)
	}
	n, err = s.Read(buf)
	if n != 2 || err != nil {
		t.Fatalf("second read = (%d, %v), want (2, nil)", n, err)
	}
	if _, err = s.Read(buf); err != io.EOF {
		t.Fatalf("read past end: err = %v, want EOF", err)
	}

	select {
	case <-s.done:
	default:
		t.Error("done channel not closed after EOF")
	}
}

func TestStreamPausedEmitsSilenceWithoutAdvancing(t *testing.T) {
	var paused atomic.Bool
	s := newStream([]byte{1, 2, 3, 4}, &paused)

	buf := make([]byte, 2)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	before := s.position()

	paused.Store(true)
	buf[0], buf[1] = 9, 9
	n, err := s.Read(buf)
	if n != len(buf) || err != nil {
		t.Fatalf("paused read = (%d, %v), want (%d, nil)", n, err, len(buf))
	}
	if buf[0] != 0 || buf[1] != 0 {
		t.Errorf("paused read emitted %v, want silence", buf)
	}
	if s.position() != before {
		t.Errorf("cursor moved from %d to %d while paused", before, s.position())
	}

	paused.Store(false)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("resumed read: %v", err)
	}
	if buf[0] != 3 || buf[1] != 4 {
		t.Errorf("resumed read = %v, want the bytes after the cursor", buf)
	}
}

func TestStreamStopReturnsEOF(t *testing.T) {
	var paused atomic.Bool
	s := newStream(make([]byte, 1024), &paused)

	s.stop()
	if _, err := s.Read(make([]byte, 16)); err != io.EOF {
		t.Fatalf("read after stop: err = %v, want EOF", err)
	}
	select {
	case <-s.done:
	default:
		t.Error("done channel not closed after stop")
	}
}
