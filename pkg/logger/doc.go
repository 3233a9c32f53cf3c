// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, helper attribute constructors,
// and transparent injection of values stored in context.Context.
//
// The package standardises structured logging across the flag service by
// exposing a single factory, New, that creates a *slog.Logger configured by a
// set of Option functions. These options allow you to:
//
//   - Select an output format (text or json)
//   - Set the minimum log level
//   - Supply default slog.Attr values applied to every record
//   - Register ContextExtractor callbacks that inject attributes pulled from
//     a context value (for example a request id) every time Handle is invoked.
//
// # Architecture
//
// New determines the concrete slog.Handler implementation, slog.NewTextHandler
// or slog.NewJSONHandler, based on the configured Format. It then wraps the
// handler with LogHandlerDecorator which executes any registered
// ContextExtractor callbacks before delegating to the underlying handler.
//
// Helper constructors such as FlagKey, ExperimentID and Error live in attr.go
// and keep attribute naming consistent across the codebase.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithProduction("flag-service"),
//	    logger.WithContextValue("request_id", ctxKeyRequestID),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "flag evaluated",
//	    logger.FlagKey("new-dashboard"),
//	    logger.UserID("user-42"),
//	    logger.Reason("rollout"),
//	)
//
// # Error Handling
//
// Helper functions Error and Errors produce attributes only when the supplied
// error value is non-nil allowing calls like:
//
//	log.Info("operation finished", logger.Error(err))
//
// without an additional nil check.
package logger
