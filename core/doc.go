// Package core contains the shared domain types of taskcore: tasks and their
// hints, the closed set of execution strategies, routing decisions, execution
// attempts and fallback chains, the session-scoped shared execution context,
// producer-facing results and the error taxonomy. Higher level packages
// (router, orchestrator, memory, window) depend on core; core depends on
// nothing but the standard library and uuid.
package core
