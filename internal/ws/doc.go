// Package ws implements the per-subject WebSocket endpoint for VitalGuard.
//
// Hub upgrades HTTP connections at /ws/{subject} and registers each one as a
// delivery channel in the fanout registry, so pipeline dispatches for that
// subject reach every open connection. Every connection gets its own read and
// write goroutines; a slow or silent peer only ever stalls itself.
//
// Client-initiated frames:
//
//	{"type": "ping"}                     → {"type": "pong", "timestamp": …}
//	{"type": "subscribe", "channel": c}  → {"type": "subscribed", "channel": c, "timestamp": …}
//
// Server-initiated frames:
//
//	{"type": "health_update", "data": {…reading…}, "timestamp": …}
//	{"type": "alert",         "data": {…alert…},   "timestamp": …}
//
// The subscribe acknowledgement does not gate delivery: every channel
// registered for a subject receives all of that subject's events regardless
// of the declared topic. The upgrader accepts all origins — apply CORS
// restrictions at the reverse-proxy level.
package ws
