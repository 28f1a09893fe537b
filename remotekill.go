// Remote-kill channel: an optional Redis subscription carrying out-of-band
// "kill this publish" commands.
//
// This server has at most one active publisher, so "kill-session"/
// "close-stream" both just end whatever is currently bound; there is no
// channel/session argument left to match on.

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

func runRemoteKillReceiver(cfg *Config, sup *Supervisor) {
	if !cfg.RedisUse {
		return
	}

	defer func() {
		if err := recover(); err != nil {
			switch x := err.(type) {
			case string:
				LogError(errors.New(x))
			case error:
				LogError(x)
			default:
				LogError(errors.New("could not connect to redis"))
			}
		}
		LogWarning("Connection to Redis lost!")
	}()

	var redisClient *redis.Client
	if cfg.RedisTLS {
		redisClient = redis.NewClient(&redis.Options{
			Addr:      cfg.RedisHost + ":" + cfg.RedisPort,
			Password:  cfg.RedisPassword,
			TLSConfig: &tls.Config{},
		})
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
	}

	ctx := context.Background()
	subscriber := redisClient.Subscribe(ctx, cfg.RedisChannel)

	LogInfo("[REDIS] Listening for commands on channel '" + cfg.RedisChannel + "'")

	for {
		msg, err := subscriber.ReceiveMessage(ctx)
		if err != nil {
			LogWarning("Could not connect to Redis: " + err.Error())
			time.Sleep(10 * time.Second)
			continue
		}
		parseRemoteKillCommand(sup, msg.Payload)
	}
}

func parseRemoteKillCommand(sup *Supervisor, cmd string) {
	defer func() {
		if err := recover(); err != nil {
			LogWarning("Could not parse message: " + cmd)
		}
	}()

	parts := strings.Split(cmd, ">")
	if len(parts) != 2 {
		LogWarning("Invalid message from Redis: " + cmd)
		return
	}

	cmdName := parts[0]

	switch cmdName {
	case "kill-session", "close-stream":
		if !sup.KillActive() {
			LogWarning("[REDIS] No active publisher to kill")
		}
	default:
		LogWarning("Unknown Redis command: " + cmd)
	}
}
