// Package shutdown coordinates graceful process termination.
//
// Components register hooks as they start; on SIGINT or SIGTERM (or when the
// parent context ends) the hooks run in reverse registration order under a
// shared deadline:
//
//	h := shutdown.NewHandler(15*time.Second, logger)
//	h.OnShutdown("http", srv.Shutdown)
//	h.OnShutdown("store", func(context.Context) error { return store.Close() })
//	err := h.Wait(ctx)
package shutdown
