// HTTP API: stream-key lifecycle, the HTTP-FLV egress endpoint, and the
// chat proxy, routed with the standard library's net/http.ServeMux.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const waitForDataTimeout = 30 * time.Second
const chatUpstreamTimeout = 4 * time.Second

type HTTPAPI struct {
	cfg     *Config
	broker  *Broker
	control *ControlState
}

func NewHTTPAPI(cfg *Config, broker *Broker, control *ControlState) *HTTPAPI {
	return &HTTPAPI{cfg: cfg, broker: broker, control: control}
}

func (a *HTTPAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stream-key", a.withCORS(a.handleStreamKey))
	mux.HandleFunc("/api/chat", a.withCORS(a.handleChat))
	mux.HandleFunc("/api/live/stream", a.withCORS(a.handleLiveStream))
	return mux
}

func (a *HTTPAPI) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

type streamKeyResponse struct {
	StreamKey *string `json:"stream_key"`
	ServerURL string  `json:"server_url"`
}

func (a *HTTPAPI) streamKeyResponse() streamKeyResponse {
	key := a.control.GetKey()
	resp := streamKeyResponse{ServerURL: a.rtmpServerURL()}
	if key != "" {
		resp.StreamKey = &key
	}
	return resp
}

func (a *HTTPAPI) rtmpServerURL() string {
	host := a.cfg.ExternalIP
	if host == "" {
		host = "localhost"
	}
	return "rtmp://" + host + ":" + strconv.Itoa(a.cfg.RTMPPort) + "/live"
}

func (a *HTTPAPI) handleStreamKey(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.streamKeyResponse())
	case http.MethodPost:
		key := strings.ReplaceAll(uuid.New().String(), "-", "")
		a.control.SetKey(key)
		writeJSON(w, http.StatusOK, a.streamKeyResponse())
	case http.MethodDelete:
		a.control.ClearKey()
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleLiveStream waits for readiness, subscribes with the init-prefix/GOP
// snapshot captured under the broker's single critical section, then streams
// prefix·gop·live_tail until the client disconnects or the stream ends.
func (a *HTTPAPI) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !a.broker.WaitForData(activeStreamID, waitForDataTimeout) {
		http.Error(w, "Stream not ready", http.StatusServiceUnavailable)
		return
	}

	sub, snapshot, ok := a.broker.SubscribeWithHeaders(activeStreamID)
	if !ok {
		http.Error(w, "Stream ended", http.StatusServiceUnavailable)
		return
	}
	defer a.broker.Unsubscribe(activeStreamID, sub)

	w.Header().Set("Content-Type", "video/x-flv")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	if _, err := w.Write(snapshot); err != nil {
		return
	}
	if canFlush {
		flusher.Flush()
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, open := <-sub:
			if !open {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat forwards the prompt to an external generative-text API. Kept
// minimal: no streaming, no retries.
func (a *HTTPAPI) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if a.cfg.ChatUpstreamURL == "" {
		http.Error(w, "chat is not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatUpstreamTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"message": req.Message})

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ChatUpstreamURL, bytes.NewReader(body))
	if err != nil {
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")
	if a.cfg.ChatAPIKey != "" {
		upstreamReq.Header.Set("x-goog-api-key", a.cfg.ChatAPIKey)
	}

	client := &http.Client{Timeout: chatUpstreamTimeout}
	res, err := client.Do(upstreamReq)
	if err != nil {
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.StatusCode)
	io.Copy(w, res.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
