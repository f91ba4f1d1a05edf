// Package eventloop defines the scheduling contract the Discovery
// Manager borrows from its host (spec.md §6) and a goroutine-backed
// default implementation for standalone hosts such as cmd/discoveryd.
// The event loop itself is an external collaborator per spec.md §1;
// this package exists so the rest of discovery/ has something
// concrete to run against in tests and the demo.
package eventloop

import "time"

// CallbackHandle identifies a scheduled repeated callback so it can
// later be removed with RemoveCallback.
type CallbackHandle uint64

// EventLoop matches spec.md §6's Event Loop contract: a repeating
// callback registration, its removal, and a one-shot delayed
// callback used for deferred slot reclamation (spec.md §4.3).
type EventLoop interface {
	// AddRepeatedCallback schedules fn to run every period, starting
	// after the first period elapses, and returns a handle for
	// RemoveCallback.
	AddRepeatedCallback(fn func(), period time.Duration) CallbackHandle

	// RemoveCallback cancels a previously scheduled repeated callback.
	// Removing an unknown or already-removed handle is a no-op.
	RemoveCallback(handle CallbackHandle)

	// AddDelayedCallback schedules fn to run once, on the event
	// loop's own goroutine, at the next turn. Used by the pool to
	// reclaim a slot outside of a transport callback's stack
	// (spec.md §4.3 "Slot reclamation").
	AddDelayedCallback(fn func())
}
