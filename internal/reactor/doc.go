// Package reactor multiplexes readiness events for non-blocking sockets
// using poll(2) and contains the socket helpers used by the proxy.
//
// The reactor is not safe for concurrent use: the goroutine calling
// [*Reactor.Poll] owns the reactor and every registered handler.
package reactor
