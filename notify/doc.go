// Copyright (c) 2025 IDO Charity.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package notify implements the change-subscription side of the storage
collaborator: committed vote and round mutations are pushed to subscribers
as full snapshots.

# Hub

Hub is the in-process implementation. Subscribers get a channel and a
cancel func:

	ch, cancel := hub.SubscribeTallies(roundID)
	defer cancel()
	for snapshot := range ch {
		// snapshot is a full replacement, not a delta
	}

Publishing never blocks: a slow subscriber loses old snapshots, never the
newest one. The contract is "every committed mutation eventually produces
at least one subsequent snapshot", which coalescing preserves.

# Redis Fanout

RedisBridge extends the hub across server instances. Each instance
publishes locally and to two Redis channels; Run feeds peer messages back
into the local hub, skipping messages the instance originated itself.

	bridge := notify.NewRedisBridge(notify.MustRedis(cfg.RedisURL), hub, instanceID)
	go bridge.Run(ctx)

The bridge is optional; single-instance deployments use the Hub directly.
Both satisfy the Publisher interface consumed by the ledger and lifecycle
packages.
*/
package notify
