package identify

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/iris/pkg/identity"
	"github.com/Ramsey-B/iris/pkg/models"
	"github.com/Ramsey-B/iris/pkg/normalizers"
	"github.com/Ramsey-B/iris/pkg/tracing"
)

const missingTouchpoint = "At least one of email or phoneNumber must be provided."

var validate = validator.New()

// Register registers identify routes
func Register(g *echo.Group) {
	g.POST("/identify", Identify)
}

// Identify reconciles the posted touchpoints and returns the consolidated contact
func Identify(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "routes.identify.Identify")
	defer span.End()

	var req models.IdentifyRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}

	// blank values normalise to absent, so the rule is checked on the normalised pair
	email, phone := normalizers.Observation(req.Email, req.Phone())
	if email == nil && phone == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, missingTouchpoint)
	}

	ctx, engine, err := ectoinject.GetContext[*identity.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	contact, err := engine.Identify(ctx, email, phone)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"primary_id":      contact.PrimaryContactID,
			"secondary_count": len(contact.SecondaryContactIDs),
		}).Debug("identified contact")
	}

	return c.JSON(http.StatusOK, models.IdentifyResponse{Contact: *contact})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fe := verrs[0]
	field := "email"
	if fe.StructField() == "PhoneNumber" {
		field = "phoneNumber"
	}
	switch fe.Tag() {
	case "email":
		return fmt.Sprintf("%s must be a valid email address.", field)
	case "min":
		return fmt.Sprintf("%s must not be empty.", field)
	default:
		return fmt.Sprintf("%s is invalid.", field)
	}
}
