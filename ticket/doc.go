// Package ticket generates human-readable, collision-free ticket ids.
//
// A Sequencer owns all increments of the per record type counters. Each id is
// produced by one atomic increment-and-read on a Counter at the moment a record
// is persisted, so concurrent finalizations never share an id. Gaps (from
// writes that fail after an id was drawn) are acceptable; duplicates are not.
package ticket
