// Package models holds the server-side domain records: users, ledger rows
// for issued tokens, and the token pair handed to clients.
package models
