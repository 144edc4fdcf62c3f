// Package session houses concrete implementations of core.SessionStore.
// The interface itself (and the Session struct) live in the core package so
// higher level packages (engine, server) never depend on concrete storage.
//
// Add further backends in sub-packages without changing any calling code;
// only the wiring layer decides which implementation to instantiate.
package session
