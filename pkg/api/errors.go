package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/inventory"
	"github.com/platinummonkey/stockroom/pkg/rbac"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

var errInternal = errors.New("internal server error")

// statusFor maps a service error to an HTTP status and a reason code
func statusFor(err error) (int, string) {
	var accessErr *rbac.AccessError
	if errors.As(err, &accessErr) {
		return http.StatusForbidden, string(accessErr.Reason)
	}

	var violation *inventory.InvariantViolation
	if errors.As(err, &violation) {
		switch violation.Reason {
		case inventory.ReasonDuplicateSku, inventory.ReasonOrganizationNotEmpty:
			return http.StatusConflict, string(violation.Reason)
		}
		return http.StatusUnprocessableEntity, string(violation.Reason)
	}

	switch {
	case errors.Is(err, inventory.ErrUnknownActor):
		return http.StatusUnauthorized, "UnknownActor"
	case errors.Is(err, inventory.ErrUnsupportedOperation):
		return http.StatusMethodNotAllowed, "UnsupportedOperation"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, storage.ErrTimeout):
		return http.StatusGatewayTimeout, "StorageTimeout"
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable, "StorageUnavailable"
	case errors.Is(err, storage.ErrConstraintViolation):
		return http.StatusConflict, "ConstraintViolation"
	case errors.Is(err, storage.ErrInvalidArgument), errors.Is(err, audit.ErrMissingOrganization):
		return http.StatusBadRequest, httputil.ReasonInvalidArgument
	}
	return http.StatusInternalServerError, ""
}

// writeError writes err using the status mapping. Unmapped errors are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, reason := statusFor(err)
	if status == http.StatusInternalServerError {
		s.requestLogger(r).WithError(err).Error("Request failed")
		httputil.WriteReasonError(w, status, errInternal, httputil.ReasonInternal, nil)
		return
	}
	if status >= http.StatusInternalServerError {
		s.requestLogger(r).WithError(err).Warn("Storage unavailable")
	}
	httputil.WriteReasonError(w, status, err, reason, nil)
}
