package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"SignalEngine/pkg/logger"
)

// RequestLogging logs one line per request. 5xx responses log at error.
func RequestLogging(lgr *logger.Logger) echo.MiddlewareFunc {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", routeOf(c)),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency", time.Since(start)),
			}
			if c.Response().Status >= 500 {
				lgr.Error("http request", append(fields, logger.Error(err))...)
			} else {
				lgr.Debug("http request", fields...)
			}
			return nil
		}
	}
}
