// RTMP session: handshake, command dispatch, publish lifecycle, and
// RTMP-to-FLV retagging into the broker. There is no RTMP "play" path here;
// the only consumer of ingested media is the broker, fed over HTTP-FLV.

package main

import (
	"bufio"
	"crypto/subtle"
	"net"
	"sync/atomic"
	"time"
)

type RTMPSession struct {
	supervisor *Supervisor
	conn       net.Conn
	ip         string

	r  *bufio.Reader
	w  *bufio.Writer
	cr *chunkReader

	outChunkSize uint32
	ackWindow    uint32
	lastAck      uint64

	key         string
	streamID    string
	publishing  bool
	killed      int32
	publishedAt time.Time

	gotKeyframe bool
	gopTags     [][]byte
	flvStarted  bool
	headersDone bool
	audioLogged bool
	videoLogged bool
}

func CreateRTMPSession(sup *Supervisor, ip string, conn net.Conn) *RTMPSession {
	r := bufio.NewReaderSize(conn, 65536)
	return &RTMPSession{
		supervisor:   sup,
		conn:         conn,
		ip:           ip,
		r:            r,
		w:            bufio.NewWriterSize(conn, 65536),
		cr:           newChunkReader(r),
		outChunkSize: RTMP_OUT_CHUNK_SIZE,
		ackWindow:    DEFAULT_WINDOW_ACK_SIZE,
	}
}

func (s *RTMPSession) Kill() {
	if atomic.CompareAndSwapInt32(&s.killed, 0, 1) {
		s.conn.Close()
	}
}

func (s *RTMPSession) isKilled() bool {
	return atomic.LoadInt32(&s.killed) == 1
}

// HandleSession drives the connection to completion: handshake, then the
// chunk-stream/command loop until EOF, protocol error, or Kill().
func (s *RTMPSession) HandleSession() {
	if err := performHandshake(s.r, s.w); err != nil {
		LogDebugSession(0, s.ip, "handshake failed: "+err.Error())
		return
	}

	defer s.onClose()

	for {
		msg, err := s.cr.ReadMessage()
		if err != nil {
			if !s.isKilled() {
				LogDebugSession(0, s.ip, "session ended: "+err.Error())
			}
			return
		}

		if err := s.handleMessage(msg); err != nil {
			LogDebugSession(0, s.ip, "protocol error: "+err.Error())
			return
		}

		if s.ackWindow > 0 && s.cr.totalRecv-s.lastAck >= uint64(s.ackWindow) {
			s.lastAck = s.cr.totalRecv
			s.sendAck(uint32(s.cr.totalRecv))
		}
	}
}

func (s *RTMPSession) handleMessage(msg *rtmpMessage) error {
	switch msg.typeID {
	case RTMP_TYPE_SET_CHUNK_SIZE:
		if len(msg.payload) >= 4 {
			cr := s.cr
			cr.peerChunkSize = readU24BE(msg.payload[1:4]) | (uint32(msg.payload[0]&0x7F) << 24)
			if cr.peerChunkSize == 0 {
				cr.peerChunkSize = RTMP_CHUNK_SIZE
			}
		}
	case RTMP_TYPE_WINDOW_ACKNOWLEDGEMENT_SIZE:
		// The peer's declared window sets how often this session
		// acknowledges received bytes (see HandleSession).
		if len(msg.payload) >= 4 {
			s.ackWindow = uint32(msg.payload[0])<<24 | readU24BE(msg.payload[1:4])
		}
	case RTMP_TYPE_ABORT, RTMP_TYPE_ACKNOWLEDGEMENT, RTMP_TYPE_EVENT, RTMP_TYPE_SET_PEER_BANDWIDTH:
		// no-op for an ingest-only server
	case RTMP_TYPE_AUDIO:
		s.handleMediaTag(byte(RTMP_TYPE_AUDIO), msg)
	case RTMP_TYPE_VIDEO:
		s.handleMediaTag(byte(RTMP_TYPE_VIDEO), msg)
	case RTMP_TYPE_DATA:
		s.handleDataMessage(msg.timestamp, msg.payload)
	case RTMP_TYPE_FLEX_STREAM:
		if len(msg.payload) > 1 {
			s.handleDataMessage(msg.timestamp, msg.payload[1:])
		}
	case RTMP_TYPE_INVOKE:
		return s.handleInvoke(msg.payload)
	case RTMP_TYPE_FLEX_MESSAGE:
		if len(msg.payload) > 1 {
			return s.handleInvoke(msg.payload[1:])
		}
	}
	return nil
}

func (s *RTMPSession) handleInvoke(payload []byte) error {
	stream := &AMFDecodingStream{buffer: payload}
	cmd := stream.ReadOne()
	name := cmd.GetString()

	tx := stream.ReadOne()
	txID := tx.GetDouble()

	cmdObj := stream.ReadOne()

	switch name {
	case "connect":
		s.handleConnect(txID)
	case "releaseStream", "FCPublish", "deleteStream", "FCUnpublish":
		s.respondNullResult(txID)
	case "createStream":
		s.respondCreateStream(txID)
	case "publish":
		nameArg := stream.ReadOne()
		s.handlePublish(nameArg.GetString())
	case "closeStream":
		s.endPublish()
	default:
		_ = cmdObj
	}

	return nil
}

func (s *RTMPSession) handleConnect(txID float64) {
	s.sendProto(RTMP_TYPE_WINDOW_ACKNOWLEDGEMENT_SIZE, u32be(DEFAULT_WINDOW_ACK_SIZE))

	bw := append(u32be(DEFAULT_WINDOW_ACK_SIZE), 2) // dynamic limit type
	s.sendProto(RTMP_TYPE_SET_PEER_BANDWIDTH, bw)

	s.sendProto(RTMP_TYPE_SET_CHUNK_SIZE, u32be(s.outChunkSize))

	result := amf0Object(map[string]*AMF0Value{
		"fmsVer":       amf0String("FMS/3,0,1,123"),
		"capabilities": amf0Number(31),
	})
	info := amf0Object(map[string]*AMF0Value{
		"level":          amf0String("status"),
		"code":           amf0String("NetConnection.Connect.Success"),
		"description":    amf0String("Connection succeeded."),
		"objectEncoding": amf0Number(0),
	})
	s.sendCommand(RTMP_CHANNEL_INVOKE, 0, "_result", txID, result, info)
}

func (s *RTMPSession) respondCreateStream(txID float64) {
	s.sendCommand(RTMP_CHANNEL_INVOKE, 0, "_result", txID, amf0Null(), amf0Number(1))
}

func (s *RTMPSession) respondNullResult(txID float64) {
	s.sendCommand(RTMP_CHANNEL_INVOKE, 0, "_result", txID, amf0Null())
}

// handlePublish validates the stream name against the active key with a
// constant-time comparison.
func (s *RTMPSession) handlePublish(streamName string) {
	name := stripQuery(streamName)

	active := s.supervisor.control.GetKey()
	if active == "" || subtle.ConstantTimeCompare([]byte(name), []byte(active)) != 1 {
		s.sendOnStatus("error", "NetStream.Publish.BadName", "Invalid stream key")
		s.Kill()
		return
	}

	if s.publishing {
		return
	}

	s.key = name
	s.publishing = true
	s.publishedAt = time.Now()

	s.broker().RegisterStream(activeStreamID)

	s.sendProto(RTMP_TYPE_EVENT, append(u16be(STREAM_BEGIN), 0, 0, 0, 1))
	s.sendOnStatus("status", "NetStream.Publish.Start", "Start publishing")

	LogInfo("[RTMP] Publish started from " + s.ip)

	if s.supervisor.webhook != nil {
		s.streamID = s.supervisor.webhook.SendStart(s.key, s.ip)
	}
	if s.supervisor.admin != nil {
		go s.supervisor.admin.ReportPublishStart(s.key, s.ip)
	}
}

func stripQuery(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '?' {
			return name[:i]
		}
	}
	return name
}

func (s *RTMPSession) sendOnStatus(level, code, description string) {
	info := amf0Object(map[string]*AMF0Value{
		"level":       amf0String(level),
		"code":        amf0String(code),
		"description": amf0String(description),
	})
	s.sendCommand(RTMP_CHANNEL_INVOKE, 1, "onStatus", 0, amf0Null(), info)
}

func (s *RTMPSession) endPublish() {
	if !s.publishing {
		return
	}
	s.publishing = false

	s.broker().RemoveStream(activeStreamID)

	LogInfo("[RTMP] Publish ended from " + s.ip)

	if s.supervisor.webhook != nil {
		go s.supervisor.webhook.SendStop(s.key, s.ip, s.streamID)
	}
	if s.supervisor.admin != nil {
		go s.supervisor.admin.ReportPublishStop(s.key, s.ip)
	}
}

func (s *RTMPSession) onClose() {
	s.endPublish()
}

func (s *RTMPSession) broker() *Broker {
	return s.supervisor.broker
}

// handleMediaTag retags an audio/video RTMP message as an FLV tag, feeds
// the broker, and maintains the GOP cache (keyframe-triggered reset, 600
// tag cap with a 100-tag trim).
func (s *RTMPSession) handleMediaTag(tagType byte, msg *rtmpMessage) {
	if !s.publishing {
		return
	}

	payload := msg.payload
	s.maybeLogCodec(tagType, payload)

	if !s.flvStarted {
		s.broker().AppendData(activeStreamID, flvFileHeader())
		s.flvStarted = true
	}

	tag := createFlvTagFromParts(tagType, msg.timestamp, payload)

	isKeyframe := tagType == RTMP_TYPE_VIDEO && len(payload) > 0 && payload[0]>>4 == 1

	if isKeyframe {
		s.gopTags = s.gopTags[:0]
		s.gotKeyframe = true
	}

	if s.gotKeyframe {
		s.gopTags = append(s.gopTags, tag)
		if len(s.gopTags) > GOP_CACHE_MAX_TAGS {
			s.gopTags = append([][]byte{}, s.gopTags[GOP_CACHE_TRIM_TAGS:]...)
		}
	}

	if isKeyframe {
		// Append and GOP-snapshot replacement must happen atomically
		// with respect to SubscribeWithHeaders; see AppendKeyframeTag.
		s.broker().AppendKeyframeTag(activeStreamID, tag, concatTags(s.gopTags))
	} else {
		s.broker().AppendData(activeStreamID, tag)
	}
}

func concatTags(tags [][]byte) []byte {
	total := 0
	for _, t := range tags {
		total += len(t)
	}
	out := make([]byte, 0, total)
	for _, t := range tags {
		out = append(out, t...)
	}
	return out
}

func (s *RTMPSession) handleDataMessage(timestamp uint32, payload []byte) {
	// The broker does not need to understand a data message's contents,
	// only relay it: every type-18 payload is retagged and forwarded
	// exactly like audio/video.
	if !s.publishing {
		return
	}
	if !s.flvStarted {
		s.broker().AppendData(activeStreamID, flvFileHeader())
		s.flvStarted = true
	}
	tag := createFlvTagFromParts(RTMP_TYPE_DATA, timestamp, payload)
	s.broker().AppendData(activeStreamID, tag)
}

// maybeLogCodec looks at the first audio and the first video message of a
// publish and, when that message is a sequence header, parses it purely to
// log the codec and profile; it never affects framing or broker state.
func (s *RTMPSession) maybeLogCodec(tagType byte, payload []byte) {
	if tagType == RTMP_TYPE_AUDIO && !s.audioLogged && len(payload) > 2 {
		soundFormat := payload[0] >> 4
		if soundFormat == 10 && payload[1] == 0 { // AAC sequence header
			cfg := readAACSpecificConfig(payload)
			LogInfo("[RTMP] Audio codec: AAC " + getAACProfileName(cfg))
		}
		s.audioLogged = true
	}

	if tagType == RTMP_TYPE_VIDEO && !s.videoLogged && len(payload) > 5 {
		if payload[1] == 0 { // AVC/HEVC sequence header
			cfg := readAVCSpecificConfig(payload)
			name := getAVCProfileName(cfg)
			switch cfg.codec {
			case AVC_CODEC_H264:
				LogInfo("[RTMP] Video codec: H.264 " + name)
			case AVC_CODEC_HEVC:
				LogInfo("[RTMP] Video codec: H.265 " + name)
			}
		}
		s.videoLogged = true
	}
}

/* Outbound framing helpers */

func (s *RTMPSession) write(b []byte) {
	s.w.Write(b)
	s.w.Flush()
}

func (s *RTMPSession) sendProto(msgType uint32, payload []byte) {
	packet := createBlankRTMPPacket()
	packet.header.fmt = RTMP_CHUNK_TYPE_0
	packet.header.cid = RTMP_CHANNEL_PROTOCOL
	packet.header.packet_type = msgType
	packet.header.length = uint32(len(payload))
	packet.payload = payload
	s.write(packet.CreateChunks(int(s.outChunkSize)))
}

func (s *RTMPSession) sendCommand(cid uint32, streamID uint32, name string, txID float64, args ...*AMF0Value) {
	payload := amf0EncodeOne(*amf0String(name))
	payload = append(payload, amf0EncodeOne(*amf0Number(txID))...)
	for _, a := range args {
		payload = append(payload, amf0EncodeOne(*a)...)
	}

	packet := createBlankRTMPPacket()
	packet.header.fmt = RTMP_CHUNK_TYPE_0
	packet.header.cid = cid
	packet.header.packet_type = RTMP_TYPE_INVOKE
	packet.header.stream_id = streamID
	packet.header.length = uint32(len(payload))
	packet.payload = payload
	s.write(packet.CreateChunks(int(s.outChunkSize)))
}

func (s *RTMPSession) sendAck(total uint32) {
	s.sendProto(RTMP_TYPE_ACKNOWLEDGEMENT, u32be(total))
}

func u32be(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func u16be(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}
