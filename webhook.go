// Lifecycle webhook: an optional HTTP POST to an external URL, carrying a
// signed JWT in a header, fired on publish start and publish stop.
//
// The callback server may assign a stream_id in its start-event response
// header; that id is kept on the RTMPSession itself (session.go's streamID
// field) since the stop event needs to carry the same id the start event
// received.

package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwtExpirationSeconds = 120

type LifecycleWebhook struct {
	cfg    *Config
	client *http.Client
}

func NewLifecycleWebhook(cfg *Config) *LifecycleWebhook {
	return &LifecycleWebhook{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *LifecycleWebhook) sign(event, key, ip, streamID string) (string, error) {
	subject := w.cfg.CustomJWTSubject
	if subject == "" {
		subject = "rtmp_event"
	}

	claims := jwt.MapClaims{
		"sub":       subject,
		"event":     event,
		"key":       key,
		"client_ip": ip,
		"exp":       time.Now().Unix() + jwtExpirationSeconds,
	}
	if streamID != "" {
		claims["stream_id"] = streamID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(w.cfg.JWTSecret))
}

// SendStart posts the publish-start event and returns the stream_id the
// callback server assigned, if any (empty string if the callback is
// disabled or the server didn't provide one).
func (w *LifecycleWebhook) SendStart(key, ip string) string {
	if w.cfg.CallbackURL == "" {
		return ""
	}

	tokenB64, err := w.sign("start", key, ip, "")
	if err != nil {
		LogError(err)
		return ""
	}

	res, err := w.post(tokenB64)
	if err != nil {
		LogError(err)
		return ""
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		LogWarning("[WEBHOOK] start callback returned status " + strconv.Itoa(res.StatusCode))
		return ""
	}

	return res.Header.Get("stream-id")
}

func (w *LifecycleWebhook) SendStop(key, ip, streamID string) {
	if w.cfg.CallbackURL == "" {
		return
	}

	tokenB64, err := w.sign("stop", key, ip, streamID)
	if err != nil {
		LogError(err)
		return
	}

	res, err := w.post(tokenB64)
	if err != nil {
		LogError(err)
		return
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		LogWarning("[WEBHOOK] stop callback returned status " + strconv.Itoa(res.StatusCode))
	}
}

func (w *LifecycleWebhook) post(tokenB64 string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, w.cfg.CallbackURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("rtmp-event", tokenB64)
	return w.client.Do(req)
}
