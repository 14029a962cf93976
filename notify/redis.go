// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/idocharity/rounds/models"
)

const (
	channelTallies = "rounds.tallies"
	channelRounds  = "rounds.rounds"
)

// MustRedis connects to Redis or exits. URL format per redis.ParseURL.
func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		slog.Error("redis URL invalid", "error", err)
		panic(err)
	}
	return redis.NewClient(opt)
}

type talliesEnvelope struct {
	Origin  string         `json:"origin"`
	Tallies models.Tallies `json:"tallies"`
}

type roundEnvelope struct {
	Origin string       `json:"origin"`
	Round  models.Round `json:"round"`
}

// RedisBridge fans committed snapshots out to peer instances. Local
// publishes go to the wrapped Hub immediately and to Redis best-effort;
// Run feeds snapshots published by peers back into the Hub. The origin
// tag keeps an instance from re-delivering its own messages.
type RedisBridge struct {
	rdb    *redis.Client
	hub    *Hub
	origin string
}

func NewRedisBridge(rdb *redis.Client, hub *Hub, origin string) *RedisBridge {
	return &RedisBridge{rdb: rdb, hub: hub, origin: origin}
}

func (b *RedisBridge) PublishTallies(t models.Tallies) {
	b.hub.PublishTallies(t)

	payload, err := json.Marshal(talliesEnvelope{Origin: b.origin, Tallies: t})
	if err != nil {
		slog.Error("failed to encode tally snapshot", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, channelTallies, payload).Err(); err != nil {
		slog.Warn("redis tally publish failed", "error", err, "round_id", t.RoundID)
	}
}

func (b *RedisBridge) PublishRound(r models.Round) {
	b.hub.PublishRound(r)

	payload, err := json.Marshal(roundEnvelope{Origin: b.origin, Round: r})
	if err != nil {
		slog.Error("failed to encode round event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, channelRounds, payload).Err(); err != nil {
		slog.Warn("redis round publish failed", "error", err, "round_id", r.ID)
	}
}

// Run consumes peer snapshots until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, channelTallies, channelRounds)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(msg)
		}
	}
}

func (b *RedisBridge) dispatch(msg *redis.Message) {
	switch msg.Channel {
	case channelTallies:
		var env talliesEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			slog.Warn("bad tally payload from redis", "error", err)
			return
		}
		if env.Origin == b.origin {
			return
		}
		b.hub.PublishTallies(env.Tallies)
	case channelRounds:
		var env roundEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			slog.Warn("bad round payload from redis", "error", err)
			return
		}
		if env.Origin == b.origin {
			return
		}
		b.hub.PublishRound(env.Round)
	}
}
