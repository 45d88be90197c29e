package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DeviceContext reports the device session and I/O state to attach to
// admin request logs.
type DeviceContext func() (session, ioState string)

// RequestLogger logs each admin request together with the device session it
// observed. Successful requests log at debug; client and server errors at
// warn and error.
func RequestLogger(logger zerolog.Logger, device DeviceContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.WithLevel(requestLevel(status))
		if device != nil {
			session, ioState := device()
			event = event.Str("session", session).Str("io_state", ioState)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("admin.request")
	}
}

// RequestMetricsMiddleware feeds the http request counters by route.
func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(c.Request.Method, route(c), c.Writer.Status(), time.Since(start))
	}
}

func requestLevel(status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.DebugLevel
	}
}

// route prefers the registered pattern so /prompt/:decision stays one label.
func route(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}
