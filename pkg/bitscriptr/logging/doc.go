// Package logging provides a minimal logging facade for the policy pipeline.
//
// The Logger interface wraps a subset of log/slog so applications can plug in
// their own handler or a test double:
//
//	logger := logging.New(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
//	logger.Info(ctx, "policy validated", "keys", 3, "valid", true)
//
// # Redaction
//
// Key strings, WIF private keys and extended private keys must never reach a
// log record. The pipeline logs placeholders (key1, key2, ...) and counts, and
// uses Redacted where an attribute would otherwise carry key material:
//
//	logger.Debug(ctx, "key rejected", "placeholder", "key2", logging.Redacted("key"))
//	// Logs: placeholder=key2 key="[redacted]"
package logging
