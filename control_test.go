package main

import (
	"testing"
	"time"
)

func TestControlStateSetAndGetKey(t *testing.T) {
	c := NewControlState()
	if c.GetKey() != "" {
		t.Fatalf("expected no active key initially")
	}

	c.SetKey("abc123")
	if c.GetKey() != "abc123" {
		t.Fatalf("expected key 'abc123', got %q", c.GetKey())
	}

	c.ClearKey()
	if c.GetKey() != "" {
		t.Fatalf("expected key to be cleared")
	}
}

func TestControlStateKeyChangeWakesWaiter(t *testing.T) {
	c := NewControlState()

	sig := c.changeSignal()
	done := make(chan bool, 1)
	go func() {
		c.waitForKeyChangeFrom(sig)
		done <- true
	}()

	select {
	case <-done:
		t.Fatalf("waiter should not have woken before SetKey")
	case <-time.After(20 * time.Millisecond):
	}

	c.SetKey("newkey")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("waiter did not wake after SetKey")
	}
}

func TestSupervisorIPAdmissionControl(t *testing.T) {
	cfg := &Config{MaxIPConcurrentConnections: 2}
	sup := NewSupervisor(cfg, NewBroker(), NewControlState(), nil, nil)

	if !sup.addIP("1.2.3.4") {
		t.Fatalf("expected first connection from IP to be admitted")
	}
	if !sup.addIP("1.2.3.4") {
		t.Fatalf("expected second connection from IP to be admitted")
	}
	if sup.addIP("1.2.3.4") {
		t.Fatalf("expected third connection from IP to be rejected")
	}

	sup.removeIP("1.2.3.4")
	if !sup.addIP("1.2.3.4") {
		t.Fatalf("expected a slot to free up after removeIP")
	}
}

func TestSupervisorWhitelistExemptsWildcard(t *testing.T) {
	cfg := &Config{ConcurrentLimitWhitelist: "*"}
	sup := NewSupervisor(cfg, NewBroker(), NewControlState(), nil, nil)

	if !sup.isIPExempted("9.9.9.9") {
		t.Fatalf("expected wildcard whitelist to exempt any IP")
	}
}

func TestSupervisorWhitelistExemptsRange(t *testing.T) {
	cfg := &Config{ConcurrentLimitWhitelist: "10.0.0.0/8,192.168.1.1"}
	sup := NewSupervisor(cfg, NewBroker(), NewControlState(), nil, nil)

	if !sup.isIPExempted("10.1.2.3") {
		t.Fatalf("expected 10.1.2.3 to be covered by 10.0.0.0/8")
	}
	if !sup.isIPExempted("192.168.1.1") {
		t.Fatalf("expected exact-IP whitelist entry to match")
	}
	if sup.isIPExempted("172.16.0.1") {
		t.Fatalf("expected unrelated IP to not be exempted")
	}
}

func TestKillActiveWithNoSessionReturnsFalse(t *testing.T) {
	sup := NewSupervisor(&Config{}, NewBroker(), NewControlState(), nil, nil)
	if sup.KillActive() {
		t.Fatalf("expected KillActive to report false with no active session")
	}
}
