// FLV framing

package main

import (
	"encoding/binary"
)

// The 13-byte FLV file header: signature "FLV", version 1, flags 0x05
// (audio + video present), header size 9, followed by the mandatory
// leading PreviousTagSize0 (always zero).
func flvFileHeader() []byte {
	return []byte{
		'F', 'L', 'V', 0x01, 0x05,
		0x00, 0x00, 0x00, 0x09,
		0x00, 0x00, 0x00, 0x00,
	}
}

// Frames one FLV tag from an RTMP message's type/timestamp/payload. Takes
// the raw (tagType, timestamp, payload) triple directly since the broker
// never sees a full RTMPPacket, only retagged media.
func createFlvTagFromParts(tagType byte, timestamp uint32, payload []byte) []byte {
	length := uint32(len(payload))
	previousTagSize := 11 + length
	b := make([]byte, previousTagSize+4)

	b[0] = tagType

	aux := make([]byte, 4)
	binary.BigEndian.PutUint32(aux, length)
	b[1] = aux[1]
	b[2] = aux[2]
	b[3] = aux[3]

	b[4] = byte(timestamp>>16) & 0xff
	b[5] = byte(timestamp>>8) & 0xff
	b[6] = byte(timestamp) & 0xff
	b[7] = byte(timestamp>>24) & 0xff

	b[8] = 0
	b[9] = 0
	b[10] = 0

	copy(b[11:], payload)

	aux2 := make([]byte, 4)
	binary.BigEndian.PutUint32(aux2, previousTagSize)
	copy(b[previousTagSize:], aux2)

	return b
}
