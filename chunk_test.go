package main

import (
	"bufio"
	"bytes"
	"testing"
)

func fmt0Header(timestamp, length uint32, typeID byte, streamID uint32) []byte {
	h := make([]byte, 11)
	h[0] = byte(timestamp >> 16)
	h[1] = byte(timestamp >> 8)
	h[2] = byte(timestamp)
	h[3] = byte(length >> 16)
	h[4] = byte(length >> 8)
	h[5] = byte(length)
	h[6] = typeID
	h[7] = byte(streamID)
	h[8] = byte(streamID >> 8)
	h[9] = byte(streamID >> 16)
	h[10] = byte(streamID >> 24)
	return h
}

func TestChunkReaderSingleChunkMessage(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(RTMP_CHUNK_TYPE_0<<6) | RTMP_CHANNEL_INVOKE)
	buf.Write(fmt0Header(0, 5, RTMP_TYPE_INVOKE, 0))
	buf.Write([]byte("hello"))

	cr := newChunkReader(bufio.NewReader(&buf))
	msg, err := cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.typeID != RTMP_TYPE_INVOKE {
		t.Fatalf("expected typeID %d, got %d", RTMP_TYPE_INVOKE, msg.typeID)
	}
	if string(msg.payload) != "hello" {
		t.Fatalf("expected payload 'hello', got %q", msg.payload)
	}
}

func TestChunkReaderSplitsAcrossPeerChunkSize(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, RTMP_CHUNK_SIZE+40)

	var buf bytes.Buffer
	buf.WriteByte(byte(RTMP_CHUNK_TYPE_0<<6) | RTMP_CHANNEL_AUDIO)
	buf.Write(fmt0Header(0, uint32(len(payload)), RTMP_TYPE_AUDIO, 1))
	buf.Write(payload[:RTMP_CHUNK_SIZE])

	// Continuation chunk: fmt 3, same chunk-stream id, no header bytes.
	buf.WriteByte(byte(RTMP_CHUNK_TYPE_3<<6) | RTMP_CHANNEL_AUDIO)
	buf.Write(payload[RTMP_CHUNK_SIZE:])

	cr := newChunkReader(bufio.NewReader(&buf))
	msg, err := cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.payload) != len(payload) {
		t.Fatalf("expected payload length %d, got %d", len(payload), len(msg.payload))
	}
	if !bytes.Equal(msg.payload, payload) {
		t.Fatalf("reassembled payload does not match")
	}
}

func TestChunkReaderTwoByteChunkStreamID(t *testing.T) {
	// Basic header low-6-bits == 1 means a 2-byte escaped chunk-stream id
	// (64 + little-endian 16-bit value).
	var buf bytes.Buffer
	buf.WriteByte(byte(RTMP_CHUNK_TYPE_0<<6) | 1) // fmt=0, low 6 bits = 1 (2-byte escape)
	buf.Write([]byte{0x05, 0x00})                 // csID = 64 + (0*256 + 5) = 69
	buf.Write(fmt0Header(0, 3, RTMP_TYPE_VIDEO, 0))
	buf.Write([]byte("abc"))

	cr := newChunkReader(bufio.NewReader(&buf))
	msg, err := cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(msg.payload) != "abc" {
		t.Fatalf("expected payload 'abc', got %q", msg.payload)
	}
}

func TestChunkReaderExtendedTimestamp(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(RTMP_CHUNK_TYPE_0<<6) | RTMP_CHANNEL_VIDEO)
	h := fmt0Header(0xFFFFFF, 2, RTMP_TYPE_VIDEO, 0)
	buf.Write(h)
	buf.Write([]byte{0x00, 0x01, 0x86, 0xA0}) // extended timestamp = 100000
	buf.Write([]byte("hi"))

	cr := newChunkReader(bufio.NewReader(&buf))
	msg, err := cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.timestamp != 100000 {
		t.Fatalf("expected extended timestamp 100000, got %d", msg.timestamp)
	}
}
