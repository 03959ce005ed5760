package esedb

import "log/slog"

// logger returns the slog.Logger a Reader should use for its handful of
// non-fatal diagnostics (shadow header mismatch, bootstrap pass summaries).
// The teacher codebase wires no structured logging dependency anywhere
// (internal/storage/pager reports failures exclusively via wrapped errors),
// and no other repo in the retrieval pack imports one either, so this is the
// one ambient concern this module builds on the standard library rather than
// a third-party package — see DESIGN.md for the explicit justification.
func (r *Reader) logger() *slog.Logger {
	if r.log != nil {
		return r.log
	}
	return slog.Default()
}
