// Package memory contains process-local implementations of
// core.RecordRepository and core.IdempotencyStore. Depend on the core
// interfaces in your code and select an implementation (like the in-memory
// store below or storage/sqlite) at wiring time.
package memory
