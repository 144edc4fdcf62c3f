// Package assist implements the best-effort language model collaborators:
// the record classifier and the safety assistant. Both wrap a model.Model,
// bound every call with a timeout and report failures as
// core.ErrCollaboratorUnavailable so callers can fall back.
package assist
