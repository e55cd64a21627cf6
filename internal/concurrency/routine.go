package concurrency

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn on its own goroutine. A panic is logged under name instead of
// taking the process down, then handed to onPanic when set.
func Go(name string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Goroutine panicked", "name", name, "panic", r, "stack", string(debug.Stack()))
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
