// Control plane: the single-publisher supervisor loop plus the shared
// stream-key / notifier state the HTTP API and the RTMP session both touch.
//
// This control plane binds exactly one RTMP connection at a time: the
// supervisor loop waits for an active key, accepts one connection, drives
// one session to completion, then loops.

package main

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/netdata/go.d.plugin/pkg/iprange"
)

const activeStreamID = "live"

// ControlState is the process-wide mutable cell for the active stream key
// and its key-change notifier (the data-ready notifier is kept per stream
// in the broker). It is passed explicitly into the
// supervisor, the HTTP handlers and each session rather than kept in
// package-level globals.
type ControlState struct {
	mu        sync.Mutex
	activeKey string

	keyChange chan struct{}
}

func NewControlState() *ControlState {
	return &ControlState{
		keyChange: make(chan struct{}),
	}
}

func (c *ControlState) SetKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeKey = key
	close(c.keyChange)
	c.keyChange = make(chan struct{})
}

func (c *ControlState) ClearKey() {
	c.SetKey("")
}

func (c *ControlState) GetKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeKey
}

func (c *ControlState) waitForKeyChangeFrom(prev chan struct{}) {
	<-prev
}

func (c *ControlState) changeSignal() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyChange
}

// Supervisor owns the RTMP listen socket, admits at most one publisher at a
// time, and restarts after every session ends.
type Supervisor struct {
	cfg     *Config
	broker  *Broker
	control *ControlState

	ipMu    sync.Mutex
	ipCount map[string]uint32

	whitelist []iprange.Range

	webhook  *LifecycleWebhook
	admin    *AdminFeed
	activeMu sync.Mutex
	active   *RTMPSession
}

func NewSupervisor(cfg *Config, broker *Broker, control *ControlState, webhook *LifecycleWebhook, admin *AdminFeed) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		broker:  broker,
		control: control,
		ipCount: make(map[string]uint32),
		webhook: webhook,
		admin:   admin,
	}

	if cfg.ConcurrentLimitWhitelist != "" && cfg.ConcurrentLimitWhitelist != "*" {
		for _, part := range splitComma(cfg.ConcurrentLimitWhitelist) {
			r, err := iprange.ParseRange(part)
			if err != nil {
				LogError(err)
				continue
			}
			s.whitelist = append(s.whitelist, r)
		}
	}

	return s
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func (s *Supervisor) isIPExempted(ipStr string) bool {
	if s.cfg.ConcurrentLimitWhitelist == "*" {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, r := range s.whitelist {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Supervisor) addIP(ip string) bool {
	s.ipMu.Lock()
	defer s.ipMu.Unlock()
	c := s.ipCount[ip]
	if c >= s.cfg.MaxIPConcurrentConnections {
		return false
	}
	s.ipCount[ip] = c + 1
	return true
}

func (s *Supervisor) removeIP(ip string) {
	s.ipMu.Lock()
	defer s.ipMu.Unlock()
	c := s.ipCount[ip]
	if c <= 1 {
		delete(s.ipCount, ip)
	} else {
		s.ipCount[ip] = c - 1
	}
}

// Run binds the listener once and loops: wait for a key, accept one
// connection, drive it to completion, tear down, back off, repeat.
func (s *Supervisor) Run() {
	addr := s.cfg.BindAddress + ":" + strconv.Itoa(s.cfg.RTMPPort)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		LogError(err)
		return
	}
	defer listener.Close()

	LogInfo("[RTMP] Listening on " + addr)

	for {
		if s.control.GetKey() == "" {
			sig := s.control.changeSignal()
			// Re-check after capturing the signal: a SetKey landing
			// between the check above and this point would close the
			// old channel and install a fresh, unclosed one, and
			// waiting on that fresh channel would miss the key that
			// is already set. Re-checking closes that window.
			if s.control.GetKey() == "" {
				s.control.waitForKeyChangeFrom(sig)
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			LogError(err)
			return
		}

		ip := remoteIP(conn)

		if !s.isIPExempted(ip) {
			if !s.addIP(ip) {
				LogRequest(0, ip, "Connection rejected: too many concurrent connections")
				conn.Close()
				continue
			}
		}

		s.handleConnection(ip, conn)

		if !s.isIPExempted(ip) {
			s.removeIP(ip)
		}

		time.Sleep(2 * time.Second)
	}
}

func remoteIP(c net.Conn) string {
	if addr, ok := c.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	return c.RemoteAddr().String()
}

func (s *Supervisor) handleConnection(ip string, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			switch x := r.(type) {
			case error:
				LogRequest(0, ip, "session crashed: "+x.Error())
			default:
				LogRequest(0, ip, "session crashed")
			}
		}
		conn.Close()
	}()

	session := CreateRTMPSession(s, ip, conn)

	// A key change (rotation or clear) ends the session in progress.
	keyChanged := s.control.changeSignal()
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-keyChanged:
			session.Kill()
		case <-sessionDone:
		}
	}()

	s.activeMu.Lock()
	s.active = session
	s.activeMu.Unlock()

	session.HandleSession()

	s.activeMu.Lock()
	if s.active == session {
		s.active = nil
	}
	s.activeMu.Unlock()
}

// KillActive terminates the current publisher session, if any. Used by the
// remote-kill channel (remotekill.go) and the admin feed.
func (s *Supervisor) KillActive() bool {
	s.activeMu.Lock()
	active := s.active
	s.activeMu.Unlock()

	if active == nil {
		return false
	}
	active.Kill()
	return true
}
