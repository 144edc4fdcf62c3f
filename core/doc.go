// Package core provides the foundational domain types and collaborator
// contracts used by intakemesh. It defines:
//
//   - Sessions (per-identity conversation state carried across turns)
//   - Turns and Replies (the inbound message and its single acknowledgment)
//   - IntakeRecords (the persisted outcome of a completed flow)
//   - Pluggable stores and collaborators for sessions, records, media,
//     classification and outbound notification
//
// Implementation concerns (persistence engines, transports, model providers)
// live in sibling packages. Callers depend on the small interfaces declared
// here so backends can be swapped in tests and production.
package core
