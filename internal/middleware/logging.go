package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ZapLogFormatter plugs zap into chi's RequestLogger so access logs share the
// application's sink.
type ZapLogFormatter struct {
	log *zap.Logger
}

// NewZapLogFormatter creates a log formatter writing through log
func NewZapLogFormatter(log *zap.Logger) *ZapLogFormatter {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapLogFormatter{log: log}
}

// NewLogEntry implements chimw.LogFormatter
func (f *ZapLogFormatter) NewLogEntry(r *http.Request) chimw.LogEntry {
	return &zapLogEntry{log: f.log.With(
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)}
}

type zapLogEntry struct {
	log *zap.Logger
}

func (e *zapLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	// Handlers that never call WriteHeader answer 200.
	if status == 0 {
		status = http.StatusOK
	}
	e.log.Info("http request",
		zap.Int("status", status),
		zap.Int("bytes", bytes),
		zap.Duration("elapsed", elapsed),
	)
}

func (e *zapLogEntry) Panic(v interface{}, stack []byte) {
	e.log.Error("http handler panic", zap.Any("panic", v), zap.ByteString("stack", stack))
}
