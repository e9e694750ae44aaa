// Package fanout maintains the live set of delivery channels per subject and
// dispatches typed events to them.
//
// The Registry is a sharded keyed-bucket map: subjects hash to one of a fixed
// number of shards, each with its own lock, so register/unregister/lookup on
// unrelated subjects never contend. A subject may hold any number of channels
// (multi-device); a bucket is pruned the moment its last channel unregisters,
// keeping memory proportional to live connections.
//
// The Dispatcher delivers one event to every channel registered for a subject
// (or, for broadcasts, every channel everywhere). Delivery is best-effort and
// per-channel isolated: the channel list is snapshotted before the pass, send
// failures are collected, and failed channels are unregistered and closed only
// after the pass completes. A dead channel never blocks its siblings, and
// nothing is buffered or retried for it — a reconnecting subscriber only sees
// events dispatched after it re-registers.
package fanout
