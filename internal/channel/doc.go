// Package channel implements the connection lifecycle and event-dispatch
// engine: one logical realtime connection that survives transient network
// failures, detects half-open sockets with heartbeats, multiplexes message,
// key-value and presence event streams, and transparently encrypts and
// decrypts payloads under a rotating key-version scheme.
//
// The Channel owns the physical socket exclusively. On an unexpected close
// it retries with capped exponential backoff and, once reconnected,
// rewires every retained subscription, replays an outstanding presence
// join, and resumes the prior server-side session via the stored
// connectionId.
package channel
