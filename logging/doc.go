// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer CoreLogger with contextual
// helpers (session, component) and domain specific logging helpers for
// routing decisions, execution attempts and context compaction.
package logging
