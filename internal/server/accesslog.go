package server

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// secretParams are query parameters never written to the request log.
var secretParams = []string{"access_token"}

// requestLogFormatter is gin's default line with secret query values masked.
func requestLogFormatter(param gin.LogFormatterParams) string {
	if param.Latency > time.Minute {
		param.Latency = param.Latency.Truncate(time.Second)
	}
	return fmt.Sprintf("[GIN] %v | %3d | %13v | %15s | %-7s %#v\n%s",
		param.TimeStamp.Format("2006/01/02 - 15:04:05"),
		param.StatusCode,
		param.Latency,
		param.ClientIP,
		param.Method,
		redactQuery(param.Path),
		param.ErrorMessage,
	)
}

// redactQuery masks secret parameters in a path with an optional query.
// An unparsable query is replaced by a marker.
func redactQuery(path string) string {
	base, raw, ok := strings.Cut(path, "?")
	if !ok {
		return path
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return base + "?[unparsable]"
	}
	for _, name := range secretParams {
		if values.Has(name) {
			values.Set(name, "REDACTED")
		}
	}
	return base + "?" + values.Encode()
}
