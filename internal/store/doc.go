// Package store implements Courier's envelope store and topic index on Pebble.
//
// Every envelope is written under t/{len}{topic}/{ts}{seq} so a topic is a
// contiguous key range ordered by (timestamp, sequence). The entry keys and
// the topic's metadata are written in one Pebble batch per Append, which
// makes the index update atomic with durability from any reader's point of
// view.
//
// A single sequencer hands out strictly increasing ids across all topics.
// Appends lock their topics in sorted order, so same-topic appends are
// linearized while disjoint topics commit concurrently. After every commit
// (or failed commit) the installed AppendObserver is told about the range
// while the topic locks are still held.
//
// Reads go through a pebblestore.Reader, either the live DB or a snapshot,
// so batch queries can evaluate many ranges against one consistent view.
package store
