// Package resolver resolves the hostnames requested by SOCKS5 clients.
//
// Each lookup runs on its own goroutine and its result travels back to
// the event loop as a [shaping.Resolved] message.
package resolver
