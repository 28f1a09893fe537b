package main

import (
	"bufio"
	"bytes"
	"testing"
)

func TestPerformHandshakeEchoesC1IntoS2(t *testing.T) {
	c1 := bytes.Repeat([]byte{0x07}, RTMP_HANDSHAKE_SIZE)
	c1[4], c1[5], c1[6], c1[7] = 0xAA, 0xBB, 0xCC, 0xDD // non-zero bytes where S2 carries time2, which must come out zeroed

	var input bytes.Buffer
	input.WriteByte(RTMP_VERSION)
	input.Write(c1)
	input.Write(make([]byte, RTMP_HANDSHAKE_SIZE)) // C2

	var output bytes.Buffer
	if err := performHandshake(bufio.NewReader(&input), &output); err != nil {
		t.Fatalf("performHandshake failed: %v", err)
	}

	out := output.Bytes()
	wantLen := 1 + RTMP_HANDSHAKE_SIZE + RTMP_HANDSHAKE_SIZE
	if len(out) != wantLen {
		t.Fatalf("expected %d bytes written, got %d", wantLen, len(out))
	}

	if out[0] != RTMP_VERSION {
		t.Fatalf("expected S0 version %d, got %d", RTMP_VERSION, out[0])
	}

	s1 := out[1 : 1+RTMP_HANDSHAKE_SIZE]
	for i, b := range s1 {
		if b != 0 {
			t.Fatalf("expected S1 to be all zero bytes, byte %d was %#x", i, b)
		}
	}

	s2 := out[1+RTMP_HANDSHAKE_SIZE:]
	if s2[4] != 0 || s2[5] != 0 || s2[6] != 0 || s2[7] != 0 {
		t.Fatalf("expected S2's time2 field to be zeroed, got %v", s2[4:8])
	}
	if !bytes.Equal(s2[8:], c1[8:]) {
		t.Fatalf("expected S2 to echo C1 past the time2 field")
	}
}

func TestPerformHandshakeRejectsWrongVersion(t *testing.T) {
	var input bytes.Buffer
	input.WriteByte(0x02) // not RTMP_VERSION
	input.Write(make([]byte, RTMP_HANDSHAKE_SIZE))

	var output bytes.Buffer
	if err := performHandshake(bufio.NewReader(&input), &output); err == nil {
		t.Fatalf("expected an error for an unsupported handshake version")
	}
}
