// Package model defines the provider-agnostic contracts for the two remote
// calls a live turn makes: entity extraction over the user's text and action
// scoring over the current memory.
//
// Core goals:
//   - Keep request/response shapes minimal and transport independent
//   - Share prompt construction and output parsing between providers
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement Extractor and Scorer so the
// runner stays decoupled from vendor SDKs.
package model
