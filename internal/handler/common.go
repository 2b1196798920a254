package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escrow-room-service/internal/model"
	"github.com/iliyamo/escrow-room-service/internal/repository"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// occupantFromCtx retrieves the occupant stored by the session middleware.
func occupantFromCtx(c echo.Context) (*model.Occupant, bool) {
	occ, ok := c.Get("occupant").(*model.Occupant)
	return occ, ok
}

// paramID parses a numeric path parameter.
func paramID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// domainError translates service and repository errors into JSON
// responses.  Conflicts map to 409, guard violations to 422, missing
// aggregates to 404, so clients can distinguish "try again later" from
// "this operation is illegal right now".
func domainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrRoleUnavailable),
		errors.Is(err, model.ErrDuplicateRole),
		errors.Is(err, model.ErrAlreadyOccupying),
		errors.Is(err, model.ErrEvidenceAlreadyPending),
		errors.Is(err, model.ErrAlreadyProcessed),
		errors.Is(err, model.ErrActiveTransaction),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})

	case errors.Is(err, model.ErrRoomExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": err.Error()})

	case errors.Is(err, model.ErrNotAwaitingPaymentVerification),
		errors.Is(err, model.ErrNotAwaitingShippingVerification),
		errors.Is(err, model.ErrMissingReason),
		errors.Is(err, model.ErrNotShipped),
		errors.Is(err, model.ErrNotBuyer),
		errors.Is(err, model.ErrNotSeller),
		errors.Is(err, model.ErrNotReadyForRelease),
		errors.Is(err, model.ErrTerminalStatus),
		errors.Is(err, model.ErrWrongType):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})

	case errors.Is(err, model.ErrNoActiveTransaction),
		errors.Is(err, repository.ErrRoomNotFound),
		errors.Is(err, repository.ErrOccupantNotFound),
		errors.Is(err, repository.ErrTxnNotFound),
		errors.Is(err, repository.ErrEvidenceNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})

	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
