/*
Package session implements the session coordination core: CRUD over
per-(user, thread) workflow sessions, distributed mutual exclusion for every
read-modify-write path, per-user concurrency capping, and TTL-based expiry
with both lazy (on read) and active (sweeper) cleanup.
*/
package session
