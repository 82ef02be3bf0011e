package v1

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kdkiss/CrewAI-Command-Center/internal/metrics"
)

// RequestMetrics times every /api request and feeds the duration and error
// flag (status >= 400) into the recorder. Other paths pass through untimed.
func RequestMetrics(recorder *metrics.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, "/api") {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				if httpErr, ok := err.(*echo.HTTPError); ok {
					status = httpErr.Code
				} else {
					status = 500
				}
			}
			recorder.RecordRequest(duration, status >= 400)
			return err
		}
	}
}
