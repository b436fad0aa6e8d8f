package middleware

import (
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"
)

// Container makes containerID the active dependency container for the request.
func Container(containerID string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, err := ectoinject.SetActiveContainer(c.Request().Context(), containerID)
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
