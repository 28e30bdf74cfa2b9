// Package client is a Go client for the travel planner gRPC auth service.
// It keeps the token pair from the last login and refreshes the access
// token transparently when the server rejects it.
package client
