package redisserver

import (
	"bytes"
	"testing"
)

func TestOutputBuffer_Append(t *testing.T) {
	o := NewOutputBuffer(0)
	if o.Ready() {
		t.Error("Ready() = true on a fresh buffer")
	}
	if cap(o.Bytes()) != InitialOutputSize {
		t.Errorf("cap = %d, want %d", cap(o.Bytes()), InitialOutputSize)
	}

	if !o.Append([]byte("+OK\r\n")) {
		t.Fatal("Append() = false")
	}
	if !o.Ready() || string(o.Bytes()) != "+OK\r\n" {
		t.Errorf("Bytes() = %q, Ready() = %v", o.Bytes(), o.Ready())
	}
}

func TestOutputBuffer_Grows(t *testing.T) {
	o := NewOutputBuffer(1 << 20)
	o.Append([]byte("+first\r\n"))

	big := bytes.Repeat([]byte("x"), 40*1024)
	if !o.Append(big) {
		t.Fatal("Append() = false below the ceiling")
	}
	if got := cap(o.Bytes()); got != 64*1024 {
		t.Errorf("cap = %d, want %d", got, 64*1024)
	}
	if o.Len() != len("+first\r\n")+len(big) {
		t.Errorf("Len() = %d", o.Len())
	}
	if !bytes.HasPrefix(o.Bytes(), []byte("+first\r\n")) {
		t.Error("growth lost earlier contents")
	}
}

func TestOutputBuffer_ExactFitGrows(t *testing.T) {
	o := NewOutputBuffer(1 << 20)
	// A reply that fills the remaining capacity exactly still grows the buffer.
	if !o.Append(make([]byte, InitialOutputSize)) {
		t.Fatal("Append() = false")
	}
	if got := cap(o.Bytes()); got != 2*InitialOutputSize {
		t.Errorf("cap = %d, want %d", got, 2*InitialOutputSize)
	}
}

func TestOutputBuffer_Overflow(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		prefill int
		append  int
	}{
		{"single huge reply", 64 * 1024, 0, 100 * 1024},
		{"accumulated replies", 64 * 1024, 60 * 1024, 8 * 1024},
		{"at ceiling", 64 * 1024, 0, 64 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOutputBuffer(tt.max)
			if tt.prefill > 0 && !o.Append(make([]byte, tt.prefill)) {
				t.Fatal("prefill Append() = false")
			}
			if o.Append(make([]byte, tt.append)) {
				t.Fatal("Append() = true, want overflow")
			}
			if !bytes.Equal(o.Bytes(), overflowReply) {
				t.Errorf("Bytes() = %q, want %q", o.Bytes(), overflowReply)
			}
			if len(o.Bytes()) != 23 {
				t.Errorf("overflow reply is %d bytes, want 23", len(o.Bytes()))
			}
			if !o.Ready() {
				t.Error("Ready() = false after overflow")
			}
		})
	}
}

func TestOutputBuffer_Reset(t *testing.T) {
	o := NewOutputBuffer(1 << 20)
	o.Append(make([]byte, 20*1024))
	grown := cap(o.Bytes())

	o.Reset()
	if o.Len() != 0 || o.Ready() {
		t.Errorf("after Reset() Len() = %d, Ready() = %v", o.Len(), o.Ready())
	}
	if cap(o.Bytes()) != grown {
		t.Errorf("Reset() dropped capacity: %d, want %d", cap(o.Bytes()), grown)
	}
}

func TestNewOutputBuffer_SmallCeiling(t *testing.T) {
	o := NewOutputBuffer(1024)
	if cap(o.Bytes()) != 1024 {
		t.Errorf("cap = %d, want 1024", cap(o.Bytes()))
	}
	if o.Append(make([]byte, 2048)) {
		t.Error("Append() above a small ceiling should overflow")
	}
}
