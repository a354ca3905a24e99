// Package runtimex contains helpers that panic when an invariant
// is violated. Use them for conditions that cannot fail at runtime
// and for test setup, never for errors caused by the network.
package runtimex

import "fmt"

// PanicOnError calls panic() if err is not nil.
func PanicOnError(err error, message string) {
	if err != nil {
		panic(fmt.Errorf("%s: %w", message, err))
	}
}

// Try1 returns value if err is nil and panics otherwise.
func Try1[T any](value T, err error) T {
	PanicOnError(err, "Try1")
	return value
}
