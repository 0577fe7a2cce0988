package main

import (
	"net/http"

	"github.com/fieldline/fieldline"
	"github.com/google/uuid"
)

// objectPayload is the request body for object create and update.
type objectPayload struct {
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	CustomFields map[string]any `json:"custom_fields"`
}

// handleDefinitions handles /api/v1/field-definitions
func (s *Server) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		defs, err := s.repo.ListDefinitions(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: defs})

	case http.MethodPost:
		var def fieldline.FieldDefinition
		if err := readJSONBody(r, &def); err != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
			return
		}
		if err := s.repo.CreateDefinition(r.Context(), &def); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, APIResponse{Success: true, Data: def})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Success: false, Error: "method not allowed"})
	}
}

// handleDefinitionByID handles /api/v1/field-definitions/{id} and the nested
// /api/v1/field-definitions/{id}/choices collection.
func (s *Server) handleDefinitionByID(w http.ResponseWriter, r *http.Request) {
	parts, err := parseResourcePath(r.URL.Path, "/api/v1/field-definitions/")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: err.Error()})
		return
	}
	id, err := parseUUID(parts[0])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid field definition id"})
		return
	}

	if len(parts) == 2 && parts[1] == "choices" {
		s.handleChoices(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeJSON(w, http.StatusNotFound, APIResponse{Success: false, Error: "not found"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		def, err := s.repo.GetDefinition(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: def})

	case http.MethodPut, http.MethodPatch:
		var def fieldline.FieldDefinition
		if err := readJSONBody(r, &def); err != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
			return
		}
		def.ID = id
		if err := s.repo.UpdateDefinition(r.Context(), &def); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: def})

	case http.MethodDelete:
		if err := s.repo.DeleteDefinition(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusNoContent, nil)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Success: false, Error: "method not allowed"})
	}
}

// handleChoices handles the choices collection of one field definition.
func (s *Server) handleChoices(w http.ResponseWriter, r *http.Request, fieldID uuid.UUID) {
	switch r.Method {
	case http.MethodGet:
		choices, err := s.repo.ListChoices(r.Context(), fieldID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: choices})

	case http.MethodPost:
		var choice fieldline.FieldChoice
		if err := readJSONBody(r, &choice); err != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
			return
		}
		choice.FieldID = fieldID
		if err := s.repo.CreateChoice(r.Context(), &choice); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, APIResponse{Success: true, Data: choice})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Success: false, Error: "method not allowed"})
	}
}

// handleChoiceByID handles /api/v1/choices/{id}
func (s *Server) handleChoiceByID(w http.ResponseWriter, r *http.Request) {
	parts, err := parseResourcePath(r.URL.Path, "/api/v1/choices/")
	if err != nil || len(parts) != 1 {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid path"})
		return
	}
	id, err := parseUUID(parts[0])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid choice id"})
		return
	}

	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		var choice fieldline.FieldChoice
		if err := readJSONBody(r, &choice); err != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
			return
		}
		choice.ID = id
		if err := s.repo.UpdateChoice(r.Context(), &choice); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: choice})

	case http.MethodDelete:
		if err := s.repo.DeleteChoice(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusNoContent, nil)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Success: false, Error: "method not allowed"})
	}
}

// handleComputedFields handles /api/v1/computed-fields. Listing requires a
// kind query parameter since computed fields bind to exactly one kind.
func (s *Server) handleComputedFields(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		kindName := r.URL.Query().Get("kind")
		if kindName == "" {
			writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "kind query parameter is required"})
			return
		}
		kindID, err := s.repo.IdentifierFor(r.Context(), kindName)
		if err != nil {
			writeError(w, err)
			return
		}
		fields, err := s.repo.ComputedFieldsFor(r.Context(), kindID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: fields})

	case http.MethodPost:
		var cf fieldline.ComputedFieldDefinition
		if err := readJSONBody(r, &cf); err != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
			return
		}
		if err := s.repo.CreateComputedField(r.Context(), &cf); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, APIResponse{Success: true, Data: cf})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Success: false, Error: "method not allowed"})
	}
}

// handleComputedFieldByID handles /api/v1/computed-fields/{id}
func (s *Server) handleComputedFieldByID(w http.ResponseWriter, r *http.Request) {
	parts, err := parseResourcePath(r.URL.Path, "/api/v1/computed-fields/")
	if err != nil || len(parts) != 1 {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid path"})
		return
	}
	id, err := parseUUID(parts[0])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid computed field id"})
		return
	}

	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		var cf fieldline.ComputedFieldDefinition
		if err := readJSONBody(r, &cf); err != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
			return
		}
		cf.ID = id
		if err := s.repo.UpdateComputedField(r.Context(), &cf); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: cf})

	case http.MethodDelete:
		if err := s.repo.DeleteComputedField(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusNoContent, nil)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Success: false, Error: "method not allowed"})
	}
}

// handleObjects handles /api/v1/objects/{kind}[/{id}|/export|/batch]
func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	parts, err := parseResourcePath(r.URL.Path, "/api/v1/objects/")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: err.Error()})
		return
	}

	kindName := parts[0]
	kindID, err := s.repo.IdentifierFor(r.Context(), kindName)
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.listObjects(w, r, kindName, kindID)
	case len(parts) == 1 && r.Method == http.MethodPost:
		s.createObject(w, r, kindName, kindID)
	case len(parts) == 2 && parts[1] == "batch" && r.Method == http.MethodPost:
		s.batchCreateObjects(w, r, kindID)
	case len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodPost:
		s.exportObjects(w, r, kindName, kindID)
	case len(parts) == 2:
		s.handleObjectByID(w, r, kindName, kindID, parts[1])
	default:
		writeJSON(w, http.StatusNotFound, APIResponse{Success: false, Error: "not found"})
	}
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request, kindName string, kindID int16) {
	page, pageSize := parsePagination(r.URL.Query())
	result, err := s.objects.Query(r.Context(), &fieldline.ObjectQuery{
		KindID:   kindID,
		Filters:  buildFilters(r.URL.Query()),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	defs, computed, err := s.kindSchema(r, kindID)
	if err != nil {
		writeError(w, err)
		return
	}

	presented := make([]any, 0, len(result.Objects))
	for _, obj := range result.Objects {
		presented = append(presented, s.adapter.Present(kindName, defs, computed, obj))
	}
	writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: map[string]any{
		"objects":       presented,
		"total_records": result.TotalRecords,
		"page":          result.Page,
		"page_size":     result.PageSize,
	}})
}

func (s *Server) createObject(w http.ResponseWriter, r *http.Request, kindName string, kindID int16) {
	var payload objectPayload
	if err := readJSONBody(r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
		return
	}

	defs, computed, err := s.kindSchema(r, kindID)
	if err != nil {
		writeError(w, err)
		return
	}

	obj := &fieldline.ObjectRecord{KindID: kindID, Name: payload.Name, Slug: payload.Slug}
	if err := s.adapter.ApplyCreate(defs, obj, payload.CustomFields); err != nil {
		writeError(w, err)
		return
	}
	if err := s.objects.Create(r.Context(), obj); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, APIResponse{Success: true, Data: s.adapter.Present(kindName, defs, computed, obj)})
}

func (s *Server) batchCreateObjects(w http.ResponseWriter, r *http.Request, kindID int16) {
	var payloads []objectPayload
	if err := readJSONBody(r, &payloads); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
		return
	}

	defs, _, err := s.kindSchema(r, kindID)
	if err != nil {
		writeError(w, err)
		return
	}

	objs := make([]*fieldline.ObjectRecord, 0, len(payloads))
	for _, payload := range payloads {
		obj := &fieldline.ObjectRecord{KindID: kindID, Name: payload.Name, Slug: payload.Slug}
		if err := s.adapter.ApplyCreate(defs, obj, payload.CustomFields); err != nil {
			writeError(w, err)
			return
		}
		objs = append(objs, obj)
	}

	batch, err := s.objects.BatchCreate(r.Context(), objs)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if batch.HasErrors() {
		status = http.StatusMultiStatus
	}
	writeSuccess(w, status, APIResponse{Success: !batch.HasErrors(), Data: batch})
}

func (s *Server) exportObjects(w http.ResponseWriter, r *http.Request, kindName string, kindID int16) {
	if s.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{Success: false, Error: "export destination is not configured"})
		return
	}

	result, err := s.objects.Query(r.Context(), &fieldline.ObjectQuery{
		KindID:   kindID,
		Filters:  buildFilters(r.URL.Query()),
		Page:     1,
		PageSize: s.config.Query.MaxPageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	defs, err := s.repo.DefinitionsFor(r.Context(), kindID)
	if err != nil {
		writeError(w, err)
		return
	}

	key, err := s.exporter.Export(r.Context(), kindName, defs, result.Objects)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: map[string]any{
		"key":     key,
		"objects": len(result.Objects),
	}})
}

func (s *Server) handleObjectByID(w http.ResponseWriter, r *http.Request, kindName string, kindID int16, rawID string) {
	id, err := parseUUID(rawID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid object id"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		obj, err := s.objects.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		defs, computed, err := s.kindSchema(r, kindID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: s.adapter.Present(kindName, defs, computed, obj)})

	case http.MethodPut, http.MethodPatch:
		var payload objectPayload
		if err := readJSONBody(r, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
			return
		}
		obj, err := s.objects.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		defs, computed, err := s.kindSchema(r, kindID)
		if err != nil {
			writeError(w, err)
			return
		}
		if payload.Name != "" {
			obj.Name = payload.Name
		}
		if payload.Slug != "" {
			obj.Slug = payload.Slug
		}
		if err := s.adapter.ApplyUpdate(defs, obj, payload.CustomFields); err != nil {
			writeError(w, err)
			return
		}
		if err := s.objects.Update(r.Context(), obj); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, APIResponse{Success: true, Data: s.adapter.Present(kindName, defs, computed, obj)})

	case http.MethodDelete:
		if err := s.objects.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusNoContent, nil)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Success: false, Error: "method not allowed"})
	}
}

// kindSchema loads the definitions and computed fields for one kind.
func (s *Server) kindSchema(r *http.Request, kindID int16) ([]*fieldline.FieldDefinition, []*fieldline.ComputedFieldDefinition, error) {
	defs, err := s.repo.DefinitionsFor(r.Context(), kindID)
	if err != nil {
		return nil, nil, err
	}
	computed, err := s.repo.ComputedFieldsFor(r.Context(), kindID)
	if err != nil {
		return nil, nil, err
	}
	return defs, computed, nil
}
