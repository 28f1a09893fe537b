package main

import (
	"bytes"
	"testing"
	"time"
)

func TestBrokerSubscribeBeforeDataWaitsThenReceives(t *testing.T) {
	b := NewBroker()
	b.RegisterStream("live")

	if b.WaitForData("live", 10*time.Millisecond) {
		t.Fatalf("expected WaitForData to time out before any data arrives")
	}

	done := make(chan bool, 1)
	go func() {
		done <- b.WaitForData("live", time.Second)
	}()

	b.AppendData("live", []byte("first-chunk"))

	if ok := <-done; !ok {
		t.Fatalf("expected WaitForData to unblock once data arrives")
	}
}

func TestBrokerSubscribeWithHeadersReturnsPrefixSnapshot(t *testing.T) {
	b := NewBroker()
	b.RegisterStream("live")

	b.AppendData("live", []byte("AAA"))
	b.AppendData("live", []byte("BBB"))

	_, snapshot, ok := b.SubscribeWithHeaders("live")
	if !ok {
		t.Fatalf("expected stream to exist")
	}
	if !bytes.Equal(snapshot, []byte("AAABBB")) {
		t.Fatalf("expected snapshot 'AAABBB', got %q", snapshot)
	}
}

func TestBrokerSubscribeUnknownStreamFails(t *testing.T) {
	b := NewBroker()
	if _, _, ok := b.SubscribeWithHeaders("nope"); ok {
		t.Fatalf("expected subscribe to an unregistered stream to fail")
	}
}

func TestBrokerAppendAfterSubscribeIsDelivered(t *testing.T) {
	b := NewBroker()
	b.RegisterStream("live")

	sub, _, ok := b.SubscribeWithHeaders("live")
	if !ok {
		t.Fatalf("expected stream to exist")
	}

	b.AppendData("live", []byte("live-chunk"))

	select {
	case chunk := <-sub:
		if !bytes.Equal(chunk, []byte("live-chunk")) {
			t.Fatalf("unexpected chunk: %q", chunk)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for chunk")
	}
}

func TestBrokerRemoveStreamClosesSubscribers(t *testing.T) {
	b := NewBroker()
	b.RegisterStream("live")

	sub, _, ok := b.SubscribeWithHeaders("live")
	if !ok {
		t.Fatalf("expected stream to exist")
	}

	b.RemoveStream("live")

	select {
	case _, open := <-sub:
		if open {
			t.Fatalf("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for channel close")
	}
}

func TestBrokerLaggingSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := NewBroker()
	b.RegisterStream("live")

	sub, _, ok := b.SubscribeWithHeaders("live")
	if !ok {
		t.Fatalf("expected stream to exist")
	}

	// Flood well past the channel capacity without ever draining; AppendData
	// must never block the publisher goroutine on a lagging subscriber.
	done := make(chan bool, 1)
	go func() {
		for i := 0; i < BROKER_CHANNEL_CAPACITY*2; i++ {
			b.AppendData("live", []byte{byte(i)})
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("AppendData blocked on a lagging subscriber")
	}

	_ = sub
}

// TestBrokerKeyframeAppendIsAtomicWithSubscribe checks that a subscriber
// joining concurrently with a keyframe append is either in the delivery set
// for that tag or sees it already folded into its GOP snapshot, never
// neither.
func TestBrokerKeyframeAppendIsAtomicWithSubscribe(t *testing.T) {
	b := NewBroker()
	b.RegisterStream("live")

	const iterations = 200
	for i := 0; i < iterations; i++ {
		tag := []byte{byte(i)}
		gop := append([]byte{}, tag...)

		var sub subscriberChan
		var snapshot []byte
		var ok bool
		var wg = make(chan struct{})

		go func() {
			sub, snapshot, ok = b.SubscribeWithHeaders("live")
			close(wg)
		}()

		b.AppendKeyframeTag("live", tag, gop)
		<-wg

		if !ok {
			t.Fatalf("iteration %d: expected stream to exist", i)
		}

		sawInSnapshot := bytes.Contains(snapshot, tag)

		sawOnChannel := false
		select {
		case got := <-sub:
			sawOnChannel = bytes.Equal(got, tag)
		default:
		}

		if !sawInSnapshot && !sawOnChannel {
			t.Fatalf("iteration %d: tag %v lost between snapshot and channel delivery", i, tag)
		}

		b.Unsubscribe("live", sub)
	}
}
