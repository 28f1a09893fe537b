package main

import (
	"encoding/binary"
	"testing"
)

func TestFlvFileHeaderLayout(t *testing.T) {
	h := flvFileHeader()
	if len(h) != 13 {
		t.Fatalf("expected 13-byte FLV header, got %d", len(h))
	}
	if string(h[0:3]) != "FLV" {
		t.Fatalf("expected FLV signature, got %q", h[0:3])
	}
	if h[3] != 1 {
		t.Fatalf("expected version 1, got %d", h[3])
	}
	if h[4] != 0x05 {
		t.Fatalf("expected flags 0x05 (audio+video), got %#x", h[4])
	}
}

func TestCreateFlvTagFromPartsLayout(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	tag := createFlvTagFromParts(RTMP_TYPE_VIDEO, 0x010203, payload)

	if tag[0] != RTMP_TYPE_VIDEO {
		t.Fatalf("expected tag type %d, got %d", RTMP_TYPE_VIDEO, tag[0])
	}

	dataSize := uint32(tag[1])<<16 | uint32(tag[2])<<8 | uint32(tag[3])
	if dataSize != uint32(len(payload)) {
		t.Fatalf("expected data size %d, got %d", len(payload), dataSize)
	}

	ts := uint32(tag[4])<<16 | uint32(tag[5])<<8 | uint32(tag[6]) | uint32(tag[7])<<24
	if ts != 0x010203 {
		t.Fatalf("expected timestamp 0x010203, got %#x", ts)
	}

	gotPayload := tag[11 : 11+len(payload)]
	for i := range payload {
		if gotPayload[i] != payload[i] {
			t.Fatalf("payload mismatch at %d", i)
		}
	}

	previousTagSize := binary.BigEndian.Uint32(tag[11+len(payload):])
	if previousTagSize != uint32(11+len(payload)) {
		t.Fatalf("expected previous tag size %d, got %d", 11+len(payload), previousTagSize)
	}

	if len(tag) != 11+len(payload)+4 {
		t.Fatalf("unexpected total tag length %d", len(tag))
	}
}
