// Package history records every spin result.
//
// The Ledger persists entries newest first under one storage key, keeps
// them in sync across contexts, and renders them as Markdown or HTML.
package history
