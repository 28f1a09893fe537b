// Stream broker: holds the FLV init prefix, the rolling GOP cache, and the
// broadcast fanout that every HTTP-FLV subscriber reads from.
//
// There is at most one live stream at a time (see control.go), but state is
// keyed by stream ID so the locking discipline generalizes cleanly if that
// ever changes.

package main

import (
	"sync"
	"time"
)

type subscriberChan chan []byte

type streamState struct {
	mu sync.RWMutex

	subscribers map[subscriberChan]bool

	initPrefix    [][]byte
	initPrefixLen int
	prefixFrozen  bool

	gop []byte // concatenated FLV tags since the last keyframe

	hasData    bool
	dataReady  chan struct{}
	dataReadyC sync.Once
}

type Broker struct {
	mu      sync.RWMutex
	streams map[string]*streamState
}

func NewBroker() *Broker {
	return &Broker{
		streams: make(map[string]*streamState),
	}
}

// RegisterStream creates fresh state for a stream id. Any previous state
// under the same id is discarded; the control-plane supervisor guarantees
// RemoveStream ran before a new publish can call this again.
func (b *Broker) RegisterStream(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.streams[id] = &streamState{
		subscribers: make(map[subscriberChan]bool),
		dataReady:   make(chan struct{}),
	}
}

func (b *Broker) RemoveStream(id string) {
	b.mu.Lock()
	st := b.streams[id]
	delete(b.streams, id)
	b.mu.Unlock()

	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for sub := range st.subscribers {
		close(sub)
	}
	st.subscribers = nil
}

func (b *Broker) get(id string) *streamState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.streams[id]
}

// AppendData appends a chunk to every current subscriber and, while the
// prefix is not yet frozen, also to the init prefix. The first chunk flips
// has_data and wakes every caller blocked in WaitForData.
func (b *Broker) AppendData(id string, chunk []byte) {
	st := b.get(id)
	if st == nil {
		return
	}

	st.mu.Lock()

	if !st.prefixFrozen {
		cp := make([]byte, len(chunk))
		copy(cp, chunk)
		st.initPrefix = append(st.initPrefix, cp)
		st.initPrefixLen += len(cp)
		if st.initPrefixLen >= INIT_PREFIX_CAP_BYTES {
			st.prefixFrozen = true
		}
	}

	firstChunk := !st.hasData
	st.hasData = true

	subs := make([]subscriberChan, 0, len(st.subscribers))
	for sub := range st.subscribers {
		subs = append(subs, sub)
	}

	ready := st.dataReady

	st.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- chunk:
		default:
			// Backlog exceeded: this subscriber lags. Drop the chunk
			// rather than block the publisher; the subscriber resyncs
			// at the next keyframe, per the Lagged error semantics.
		}
	}

	if firstChunk {
		close(ready)
	}
}

// AppendKeyframeTag is AppendData plus a GOP-snapshot replacement, both
// performed under one lock acquisition, so a concurrent SubscribeWithHeaders
// call always lands strictly before or strictly after this tag: a subscriber
// locking in after this call observes a GOP snapshot that already includes
// this tag, and one that locked in before is still in the subscriber set
// this call notifies.
func (b *Broker) AppendKeyframeTag(id string, tag []byte, gop []byte) {
	st := b.get(id)
	if st == nil {
		return
	}

	st.mu.Lock()

	if !st.prefixFrozen {
		cp := make([]byte, len(tag))
		copy(cp, tag)
		st.initPrefix = append(st.initPrefix, cp)
		st.initPrefixLen += len(cp)
		if st.initPrefixLen >= INIT_PREFIX_CAP_BYTES {
			st.prefixFrozen = true
		}
	}

	st.gop = gop

	firstChunk := !st.hasData
	st.hasData = true

	subs := make([]subscriberChan, 0, len(st.subscribers))
	for sub := range st.subscribers {
		subs = append(subs, sub)
	}

	ready := st.dataReady

	st.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- tag:
		default:
		}
	}

	if firstChunk {
		close(ready)
	}
}

// SubscribeWithHeaders captures a new receiver and a snapshot of the
// current prefix and GOP under one critical section, so a concurrently
// published tag can never be both duplicated into the snapshot and
// delivered again on the channel, nor lost between the two.
func (b *Broker) SubscribeWithHeaders(id string) (subscriberChan, []byte, bool) {
	st := b.get(id)
	if st == nil {
		return nil, nil, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sub := make(subscriberChan, BROKER_CHANNEL_CAPACITY)
	st.subscribers[sub] = true

	total := st.initPrefixLen + len(st.gop)
	snapshot := make([]byte, 0, total)
	for _, c := range st.initPrefix {
		snapshot = append(snapshot, c...)
	}
	snapshot = append(snapshot, st.gop...)

	return sub, snapshot, true
}

func (b *Broker) Unsubscribe(id string, sub subscriberChan) {
	st := b.get(id)
	if st == nil {
		return
	}
	st.mu.Lock()
	delete(st.subscribers, sub)
	st.mu.Unlock()
}

// WaitForData blocks until the stream has emitted its first chunk or the
// timeout elapses. Returns false on timeout or if the stream does not
// exist (or vanished while waiting).
func (b *Broker) WaitForData(id string, timeout time.Duration) bool {
	st := b.get(id)
	if st == nil {
		return false
	}

	st.mu.RLock()
	if st.hasData {
		st.mu.RUnlock()
		return true
	}
	ready := st.dataReady
	st.mu.RUnlock()

	select {
	case <-ready:
		return true
	case <-time.After(timeout):
		return false
	}
}
