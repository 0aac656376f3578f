// Package logging configures the process-wide log/slog logger.
//
// New builds a JSON or text handler writing to stdout, stderr or a rotating
// file (gopkg.in/natefinch/lumberjack.v2). The level is held in a
// slog.LevelVar so configuration reloads can change it without rebuilding
// the handler. Components log through slog.Default() with a "component"
// attribute; request-scoped values placed in the context with
// WithRequestID, WithBinCode and WithClientIP are added to every *Context
// call automatically:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	logger.SetDefault()
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "bin created") // includes request_id=req-123
//
// Captured requests routinely carry credentials. RedactHeaders masks them
// before headers are logged.
package logging
