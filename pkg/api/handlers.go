package api

import (
	"net/http"

	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/inventory"
	"github.com/platinummonkey/stockroom/pkg/models"
	"github.com/platinummonkey/stockroom/pkg/rbac"
	"github.com/platinummonkey/stockroom/pkg/storage"
)

var collections = map[string]models.ResourceType{
	"users":      models.ResourceUser,
	"warehouses": models.ResourceWarehouse,
	"items":      models.ResourceInventoryItem,
}

// ListResponse wraps list results
type ListResponse struct {
	Data  []models.Entity `json:"data"`
	Count int             `json:"count"`
}

// request builds a service request from the path and the resolved actor
func request(r *http.Request, action rbac.Action, resource models.ResourceType) inventory.Request {
	return inventory.Request{
		Actor:          actorFrom(r.Context()),
		Action:         action,
		Resource:       resource,
		OrganizationID: httputil.PathString(r, "org_id"),
		ResourceID:     httputil.PathString(r, "id"),
	}
}

func collectionOf(r *http.Request) models.ResourceType {
	return collections[httputil.PathString(r, "collection")]
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, req inventory.Request, status int) {
	result, err := s.service.AuthorizeAndExecute(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch {
	case req.Action == rbac.ActionDelete:
		httputil.WriteNoContent(w)
	case result.Entity != nil:
		httputil.WriteJSON(w, status, result.Entity)
	default:
		entities := result.Entities
		if entities == nil {
			entities = []models.Entity{}
		}
		httputil.WriteSuccess(w, ListResponse{Data: entities, Count: len(entities)})
	}
}

// decodePatch reads a JSON object of field updates
func decodePatch(w http.ResponseWriter, r *http.Request) (storage.Patch, bool) {
	var patch map[string]any
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return nil, false
	}
	return storage.Patch(patch), true
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	resource := collectionOf(r)
	req := request(r, rbac.ActionRead, resource)

	filter := map[string]string{}
	for _, field := range storage.FilterableFields(resource) {
		if v := r.URL.Query().Get(field); v != "" {
			filter[field] = v
		}
	}
	req.Payload.Filter = filter

	s.execute(w, r, req, http.StatusOK)
}

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	resource := collectionOf(r)
	entity := models.NewEntity(resource)
	if !httputil.ParseJSONOrError(w, r, entity) {
		return
	}

	req := request(r, rbac.ActionCreate, resource)
	req.Payload.Entity = entity
	s.execute(w, r, req, http.StatusCreated)
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, request(r, rbac.ActionRead, collectionOf(r)), http.StatusOK)
}

func (s *Server) updateResource(w http.ResponseWriter, r *http.Request) {
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}
	req := request(r, rbac.ActionUpdate, collectionOf(r))
	req.Payload.Patch = patch
	s.execute(w, r, req, http.StatusOK)
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, request(r, rbac.ActionDelete, collectionOf(r)), http.StatusNoContent)
}

func orgRequest(r *http.Request, action rbac.Action) inventory.Request {
	req := request(r, action, models.ResourceOrganization)
	req.ResourceID = req.OrganizationID
	return req
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, orgRequest(r, rbac.ActionRead), http.StatusOK)
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	patch, ok := decodePatch(w, r)
	if !ok {
		return
	}
	req := orgRequest(r, rbac.ActionUpdate)
	req.Payload.Patch = patch
	s.execute(w, r, req, http.StatusOK)
}

func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, orgRequest(r, rbac.ActionDelete), http.StatusNoContent)
}
