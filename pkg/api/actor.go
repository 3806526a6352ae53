package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/contextkeys"
	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/observability"
)

// Identity headers. The organization header names the caller's own
// organization, which may differ from the one in the path.
const (
	HeaderUserID         = "X-User-ID"
	HeaderOrganizationID = "X-Organization-ID"
)

// actorMiddleware resolves the caller through the directory and stores it in
// the request context
func (s *Server) actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		orgID := r.Header.Get(HeaderOrganizationID)
		if userID == "" || orgID == "" {
			httputil.WriteUnauthorized(w, "missing "+HeaderUserID+" or "+HeaderOrganizationID+" header")
			return
		}

		actor, err := s.directory.Resolve(r.Context(), orgID, userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), contextkeys.ActorKey, actor)
		ctx = context.WithValue(ctx, contextkeys.OrganizationKey, httputil.PathString(r, "org_id"))
		ctx = observability.WithUserID(ctx, actor.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom returns the caller resolved by actorMiddleware
func actorFrom(ctx context.Context) *models.User {
	actor, _ := ctx.Value(contextkeys.ActorKey).(*models.User)
	return actor
}

// actorRateKey counts requests per resolved actor
func actorRateKey(r *http.Request) string {
	actor := actorFrom(r.Context())
	if actor == nil {
		return ""
	}
	return actor.OrganizationID + ":" + actor.ID
}

func (s *Server) requestLogger(r *http.Request) logrus.FieldLogger {
	logger := observability.RequestLogger(r.Context(), s.logger)
	if org, ok := r.Context().Value(contextkeys.OrganizationKey).(string); ok {
		logger = logger.WithField("organization_id", org)
	}
	return logger
}
