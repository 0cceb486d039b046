// Package store keeps the latest workspace snapshot and fans updates out
// to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Snapshot]: Serializable view of a workspace's member stats and
//     polling health
//
// Subscribers receive updates via channels with non-blocking sends; a slow
// subscriber misses updates rather than stalling the poller.
package store
