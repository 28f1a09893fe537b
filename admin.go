// Admin status feed: an optional websocket connection to an external control
// server, used to report publish start/stop events and heartbeats.
//
// This server's only publish gate is the stream-key match in session.go's
// handlePublish, so the feed here is report-only: it tells the control
// server what already happened rather than asking permission to let it
// happen.

package main

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	messages "github.com/AgustinSRG/go-simple-rpc-message"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

type AdminFeed struct {
	cfg *Config

	connectionURL string
	enabled       bool

	mu   sync.Mutex
	conn *websocket.Conn

	supervisor *Supervisor
}

// SetSupervisor wires the supervisor in after construction: the supervisor
// needs a fully-constructed AdminFeed to start, and the feed needs the
// supervisor to act on an incoming STREAM-KILL.
func (a *AdminFeed) SetSupervisor(s *Supervisor) {
	a.supervisor = s
}

func NewAdminFeed(cfg *Config) *AdminFeed {
	a := &AdminFeed{cfg: cfg}

	if cfg.ControlBaseURL == "" {
		LogWarning("CONTROL_BASE_URL not provided. The admin feed is disabled.")
		return a
	}

	base, err := url.Parse(cfg.ControlBaseURL)
	if err != nil {
		LogError(err)
		LogWarning("CONTROL_BASE_URL invalid. The admin feed is disabled.")
		return a
	}
	rel, _ := url.Parse("/ws/control/rtmp")

	a.connectionURL = base.ResolveReference(rel).String()
	a.enabled = true

	go a.connect()
	go a.runHeartbeatLoop()

	return a
}

// makeAuthToken signs a short JWT identifying this server to the control
// server, grounded on control_auth.go's MakeWebsocketAuthenticationToken.
func (a *AdminFeed) makeAuthToken() string {
	if a.cfg.ControlSecret == "" {
		return ""
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "rtmp-control",
	})

	tokenB64, err := token.SignedString([]byte(a.cfg.ControlSecret))
	if err != nil {
		LogError(err)
		return ""
	}

	return tokenB64
}

func (a *AdminFeed) connect() {
	a.mu.Lock()
	if a.conn != nil {
		a.mu.Unlock()
		return
	}

	LogInfo("[ADMIN] Connecting to " + a.connectionURL)

	headers := http.Header{}

	if tok := a.makeAuthToken(); tok != "" {
		headers.Set("x-control-auth-token", tok)
	}
	if a.cfg.ExternalIP != "" {
		headers.Set("x-external-ip", a.cfg.ExternalIP)
	}
	if a.cfg.ExternalPort != "" {
		headers.Set("x-custom-port", a.cfg.ExternalPort)
	}
	if a.cfg.ExternalSSL {
		headers.Set("x-ssl-use", "true")
	}

	conn, _, err := websocket.DefaultDialer.Dial(a.connectionURL, headers)
	if err != nil {
		a.mu.Unlock()
		LogWarning("[ADMIN] Connection error: " + err.Error())
		go a.reconnect()
		return
	}

	a.conn = conn
	a.mu.Unlock()

	go a.runReaderLoop(conn)
}

func (a *AdminFeed) reconnect() {
	time.Sleep(10 * time.Second)
	a.connect()
}

func (a *AdminFeed) onDisconnect(err error) {
	a.mu.Lock()
	a.conn = nil
	a.mu.Unlock()
	LogInfo("[ADMIN] Disconnected: " + err.Error())
	go a.connect()
}

func (a *AdminFeed) send(msg messages.RPCMessage) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return false
	}

	if err := a.conn.WriteMessage(websocket.TextMessage, []byte(msg.Serialize())); err != nil {
		return false
	}

	if LOG_DEBUG_ENABLED {
		LogDebug("[ADMIN] >>>\n" + msg.Serialize())
	}

	return true
}

// runReaderLoop only exists to detect disconnects: this feed is report-only
// and the control server has nothing to ask it beyond STREAM-KILL.
func (a *AdminFeed) runReaderLoop(conn *websocket.Conn) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			conn.Close()
			a.onDisconnect(err)
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			a.onDisconnect(err)
			return
		}

		if LOG_DEBUG_ENABLED {
			LogDebug("[ADMIN] <<<\n" + string(message))
		}

		msg := messages.ParseRPCMessage(string(message))
		a.handleIncoming(&msg)
	}
}

func (a *AdminFeed) handleIncoming(msg *messages.RPCMessage) {
	switch msg.Method {
	case "ERROR":
		LogWarning("[ADMIN] Remote error. Code=" + msg.GetParam("Error-Code") + " / Details: " + msg.GetParam("Error-Message"))
	case "STREAM-KILL":
		if a.supervisor != nil {
			a.supervisor.KillActive()
		}
	}
}

func (a *AdminFeed) runHeartbeatLoop() {
	for {
		time.Sleep(20 * time.Second)
		a.send(messages.RPCMessage{Method: "HEARTBEAT"})
	}
}

func (a *AdminFeed) ReportPublishStart(key string, ip string) {
	if !a.enabled {
		return
	}
	a.send(messages.RPCMessage{
		Method: "PUBLISH-START",
		Params: map[string]string{"Stream-Key": key, "User-IP": ip},
	})
}

func (a *AdminFeed) ReportPublishStop(key string, ip string) {
	if !a.enabled {
		return
	}
	a.send(messages.RPCMessage{
		Method: "PUBLISH-END",
		Params: map[string]string{"Stream-Key": key, "User-IP": ip},
	})
}
