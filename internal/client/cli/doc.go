// Package cli provides the interactive gophauth command-line client.
//
// It wires configuration, the gRPC client and an interactive REPL. A
// background watcher pings the server and flips the prompt between online
// and offline. The session lives in memory only: it is lost on exit and
// rotated transparently when the access token expires.
//
// Commands:
//   - register, login, logout
//   - me, profile, passwd, delete
//   - refresh (rotate the token pair by hand)
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
