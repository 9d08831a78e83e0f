/*
Package sessiond coordinates multi-step asset-generation workflows: each
(user, thread) pair owns one mutable session whose state is persisted with a
TTL, mutated only under a per-key distributed lock, and reaped once idle.

The session core lives in pkg/session; pkg/adapters provides the Redis and
in-process storage backends behind the ports in pkg/ports.
*/
package sessiond

// Version is the release version, stamped into the binary.
const Version = "0.2.0"
