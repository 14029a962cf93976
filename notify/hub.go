// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"sync"

	"github.com/idocharity/rounds/models"
)

// Publisher is the write side of the change-subscription collaborator.
// Implemented by Hub for single-instance deployments and by RedisBridge
// when committed mutations must fan out across instances.
type Publisher interface {
	PublishTallies(models.Tallies)
	PublishRound(models.Round)
}

const subscriberBuffer = 8

// Hub is an in-process subscription hub. Every committed ledger or round
// mutation is published as a full snapshot; subscribers always converge on
// the latest state because a full channel drops the oldest snapshot, never
// the newest.
type Hub struct {
	mu        sync.Mutex
	nextID    int
	tallySubs map[string]map[int]chan models.Tallies
	roundSubs map[int]chan models.Round
}

func NewHub() *Hub {
	return &Hub{
		tallySubs: make(map[string]map[int]chan models.Tallies),
		roundSubs: make(map[int]chan models.Round),
	}
}

// SubscribeTallies delivers tally snapshots for one round. The returned
// cancel func must be called when the subscriber goes away.
func (h *Hub) SubscribeTallies(roundID string) (<-chan models.Tallies, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan models.Tallies, subscriberBuffer)
	if h.tallySubs[roundID] == nil {
		h.tallySubs[roundID] = make(map[int]chan models.Tallies)
	}
	h.tallySubs[roundID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs := h.tallySubs[roundID]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.tallySubs, roundID)
			}
		}
	}
	return ch, cancel
}

// SubscribeRounds delivers round state changes (creation and completion)
// for all rounds.
func (h *Hub) SubscribeRounds() (<-chan models.Round, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan models.Round, subscriberBuffer)
	h.roundSubs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.roundSubs, id)
	}
	return ch, cancel
}

// PublishTallies emits a tally snapshot to every subscriber of its round.
func (h *Hub) PublishTallies(t models.Tallies) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.tallySubs[t.RoundID] {
		sendLatest(ch, t)
	}
}

// PublishRound emits a round state change to all round subscribers.
func (h *Hub) PublishRound(r models.Round) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.roundSubs {
		sendLatest(ch, r)
	}
}

// sendLatest never blocks: when the subscriber's buffer is full the oldest
// queued snapshot is discarded in favor of the new one. Snapshots are full
// replacements, so only the most recent matters.
func sendLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
