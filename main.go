package main

import (
	"net/http"
)

func main() {
	LogInfo("RTMP Go Server (Version 1.0.0)")

	cfg := LoadConfig()

	broker := NewBroker()
	control := NewControlState()

	webhook := NewLifecycleWebhook(cfg)
	admin := NewAdminFeed(cfg)

	supervisor := NewSupervisor(cfg, broker, control, webhook, admin)
	admin.SetSupervisor(supervisor)

	go runRemoteKillReceiver(cfg, supervisor)
	go supervisor.Run()

	api := NewHTTPAPI(cfg, broker, control)

	LogInfo("[HTTP] Listening on " + cfg.HTTPAddress)
	if err := http.ListenAndServe(cfg.HTTPAddress, api.Handler()); err != nil {
		LogError(err)
	}
}
