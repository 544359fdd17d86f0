// Package daemon coordinates the long-running soccer-cam process.
//
// It wires configuration, the state store, the transition journal, and the
// workflow manager into a single lifecycle with flock-based locking so only
// one instance drives a storage root. The daemon exposes group queries and
// the manual error reset, reports dependency health, and serves the optional
// HTTP status API.
//
// Keep orchestration logic here: lifecycle steps live in their own packages
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
