// Package shutdown runs named cleanup hooks in reverse registration order
// when the process receives SIGINT or SIGTERM, or when its context ends.
//
// Usage:
//
//	h := shutdown.NewHandler(15*time.Second, log)
//	h.OnShutdown("store", func(context.Context) error { return repo.Close() })
//	err := h.Wait(ctx)
package shutdown
