// Package client is the CLI's connection to the gophauth server.
//
// GRPCClient keeps the current session (access and refresh token) in memory,
// attaches the access token to protected calls through a unary interceptor,
// and when the server answers Unauthenticated it redeems the refresh token
// once and retries. gRPC status codes are mapped to the sentinel errors in
// errors.go so callers can match them with errors.Is.
package client
