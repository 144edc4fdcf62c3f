// Package model defines the provider-agnostic abstraction over the language
// models backing the classifier and the safety assistant.
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (assist) remain decoupled from vendor SDKs.
// MockModel offers deterministic canned completions for tests.
package model
