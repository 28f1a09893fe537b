package main

import (
	"bytes"
	"testing"
)

func TestCreateChunksSingleChunk(t *testing.T) {
	packet := createBlankRTMPPacket()
	packet.header.fmt = RTMP_CHUNK_TYPE_0
	packet.header.cid = RTMP_CHANNEL_INVOKE
	packet.header.packet_type = RTMP_TYPE_INVOKE
	packet.header.length = 5
	packet.payload = []byte("hello")

	out := packet.CreateChunks(128)

	// Basic header (1 byte, cid < 64) + message header (11 bytes, fmt 0) + payload.
	if len(out) != 1+11+5 {
		t.Fatalf("expected %d bytes, got %d", 1+11+5, len(out))
	}
	if out[0] != byte(RTMP_CHUNK_TYPE_0<<6)|RTMP_CHANNEL_INVOKE {
		t.Fatalf("unexpected basic header byte: %#x", out[0])
	}
	if !bytes.Equal(out[12:], []byte("hello")) {
		t.Fatalf("expected payload 'hello' at the tail, got %q", out[12:])
	}
}

func TestCreateChunksSplitsAcrossChunkSize(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 150)

	packet := createBlankRTMPPacket()
	packet.header.fmt = RTMP_CHUNK_TYPE_0
	packet.header.cid = RTMP_CHANNEL_VIDEO
	packet.header.packet_type = RTMP_TYPE_VIDEO
	packet.header.length = uint32(len(payload))
	packet.payload = payload

	out := packet.CreateChunks(100)

	// header(1+11) + 100 payload bytes + continuation basic header(1) + 50
	// remaining payload bytes.
	expectedLen := 1 + 11 + 100 + 1 + 50
	if len(out) != expectedLen {
		t.Fatalf("expected %d bytes, got %d", expectedLen, len(out))
	}

	continuationBasicHeaderOffset := 1 + 11 + 100
	if out[continuationBasicHeaderOffset] != byte(RTMP_CHUNK_TYPE_3<<6)|RTMP_CHANNEL_VIDEO {
		t.Fatalf("expected fmt-3 continuation basic header, got %#x", out[continuationBasicHeaderOffset])
	}
}

func TestRtmpChunkBasicHeaderCreateEscaping(t *testing.T) {
	// cid < 64: single byte.
	h := rtmpChunkBasicHeaderCreate(RTMP_CHUNK_TYPE_0, 5)
	if len(h) != 1 {
		t.Fatalf("expected 1-byte basic header for cid<64, got %d bytes", len(h))
	}

	// 64 <= cid < 64+255: two bytes.
	h = rtmpChunkBasicHeaderCreate(RTMP_CHUNK_TYPE_0, 100)
	if len(h) != 2 {
		t.Fatalf("expected 2-byte basic header for 64<=cid<319, got %d bytes", len(h))
	}
	if h[0]&0x3F != 0 {
		t.Fatalf("expected low 6 bits to be 0 for the 2-byte escape, got %#x", h[0])
	}

	// cid >= 64+255: three bytes.
	h = rtmpChunkBasicHeaderCreate(RTMP_CHUNK_TYPE_0, 1000)
	if len(h) != 3 {
		t.Fatalf("expected 3-byte basic header for cid>=319, got %d bytes", len(h))
	}
	if h[0]&0x3F != 1 {
		t.Fatalf("expected low 6 bits to be 1 for the 3-byte escape, got %#x", h[0])
	}
}
