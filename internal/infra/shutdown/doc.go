// Package shutdown coordinates process termination.
//
// Components register named hooks; Wait blocks until SIGINT, SIGTERM or
// Trigger and then runs the hooks in reverse registration order under a
// shared deadline.
//
//	h := shutdown.NewHandler(30*time.Second, shutdown.WithLogger(log))
//	h.OnShutdown("hub", hub.Shutdown)
//	err := h.Wait(ctx)
package shutdown
