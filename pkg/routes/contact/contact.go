package contact

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/models"
)

// Register registers contact routes
func Register(g *echo.Group) {
	g.GET("/:id", GetContact)
}

// GetContact returns the consolidated cluster of any member contact
func GetContact(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return httperror.NewHTTPError(http.StatusBadRequest, "contact id must be a positive integer")
	}

	ctx, engine, err := ectoinject.GetContext[*identity.Engine](c.Request().Context())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	contact, err := engine.Cluster(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.IdentifyResponse{Contact: *contact})
}
