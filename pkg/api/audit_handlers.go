package api

import (
	"net/http"

	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/httputil"
)

// queryAudit serves GET /v1/orgs/{org_id}/audit
//
//	?start=RFC3339&end=RFC3339&actor=<user id>&decision=allowed|denied&limit=N&format=json|ndjson|csv
func (s *Server) queryAudit(w http.ResponseWriter, r *http.Request) {
	start, err := httputil.ParseQueryTime(r, "start")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	end, err := httputil.ParseQueryTime(r, "end")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	format, err := audit.ParseExportFormat(httputil.ParseQueryString(r, "format", string(audit.ExportFormatJSON)))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	decision := audit.Decision(r.URL.Query().Get("decision"))
	if decision != "" && decision != audit.DecisionAllowed && decision != audit.DecisionDenied {
		httputil.WriteBadRequest(w, "decision must be allowed or denied")
		return
	}

	records, err := s.service.QueryAudit(r.Context(), actorFrom(r.Context()), audit.Query{
		OrganizationID: httputil.PathString(r, "org_id"),
		Start:          start,
		End:            end,
		ActorUserID:    r.URL.Query().Get("actor"),
		Decision:       decision,
		Limit:          limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := audit.Export(w, records, format); err != nil {
		s.requestLogger(r).WithError(err).Warn("Failed to write audit export")
	}
}
