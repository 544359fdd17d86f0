// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Group
// payloads reuse the api package types so the CLI renders the same shapes
// whether it talks to the daemon or reads the store directly.
package ipc
