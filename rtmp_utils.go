// RTMP protocol constants

package main

const RTMP_VERSION = 3
const RTMP_HANDSHAKE_SIZE = 1536

const RTMP_CHUNK_TYPE_0 = 0 // 11-bytes: timestamp(3) + length(3) + stream type(1) + stream id(4)
const RTMP_CHUNK_TYPE_1 = 1 // 7-bytes: delta(3) + length(3) + stream type(1)
const RTMP_CHUNK_TYPE_2 = 2 // 3-bytes: delta(3)
const RTMP_CHUNK_TYPE_3 = 3 // 0-byte

const RTMP_CHANNEL_PROTOCOL = 2
const RTMP_CHANNEL_INVOKE = 3
const RTMP_CHANNEL_AUDIO = 4
const RTMP_CHANNEL_VIDEO = 5
const RTMP_CHANNEL_DATA = 6

/* Protocol Control Messages */
const RTMP_TYPE_SET_CHUNK_SIZE = 1
const RTMP_TYPE_ABORT = 2
const RTMP_TYPE_ACKNOWLEDGEMENT = 3             // bytes read report
const RTMP_TYPE_WINDOW_ACKNOWLEDGEMENT_SIZE = 5 // server bandwidth
const RTMP_TYPE_SET_PEER_BANDWIDTH = 6          // client bandwidth

/* User Control Messages Event (4) */
const RTMP_TYPE_EVENT = 4

const RTMP_TYPE_AUDIO = 8
const RTMP_TYPE_VIDEO = 9

/* Data Message */
const RTMP_TYPE_FLEX_STREAM = 15 // AMF3
const RTMP_TYPE_DATA = 18        // AMF0

/* Command Message */
const RTMP_TYPE_FLEX_MESSAGE = 17 // AMF3
const RTMP_TYPE_INVOKE = 20       // AMF0

const RTMP_CHUNK_SIZE = 128
const RTMP_OUT_CHUNK_SIZE = 4096

const STREAM_BEGIN = 0x00

const DEFAULT_WINDOW_ACK_SIZE = 2500000

// GOP cache bounds (tag count based, not byte-size based; see session.go's
// handleMediaTag).
const GOP_CACHE_MAX_TAGS = 600
const GOP_CACHE_TRIM_TAGS = 100

// Init-prefix cap: once the broker has buffered this many bytes of FLV
// header + tags, it stops growing the prefix and relies on the GOP cache
// plus live broadcast fanout for anything after it.
const INIT_PREFIX_CAP_BYTES = 128 * 1024

// Broadcast channel backlog per subscriber before it is considered lagged.
const BROKER_CHANNEL_CAPACITY = 2048
