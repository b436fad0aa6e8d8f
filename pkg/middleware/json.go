package middleware

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
)

// JSONOnly rejects requests that carry a body in anything but application/json.
func JSONOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			mediaType, _, err := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
			if err != nil || mediaType != echo.MIMEApplicationJSON {
				return echo.NewHTTPError(http.StatusUnsupportedMediaType, "Content-Type must be application/json.")
			}
			return next(c)
		}
	}
}
