package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fieldline/fieldline"
	"github.com/fieldline/fieldline/internal"
	"github.com/google/uuid"
)

// parseResourcePath parses /api/v1/{resource} or /api/v1/{resource}/{id} with
// an optional trailing action segment like /api/v1/objects/device/export.
func parseResourcePath(path, prefix string) (parts []string, err error) {
	path = strings.TrimPrefix(path, prefix)
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("invalid path: missing resource")
	}
	return strings.Split(path, "/"), nil
}

// buildFilters extracts cf_ filter parameters from the query string. Reserved
// pagination parameters never become filters.
func buildFilters(queryParams url.Values) []fieldline.Filter {
	reservedParams := map[string]bool{
		"page":      true,
		"page_size": true,
	}

	var filters []fieldline.Filter
	for key, values := range queryParams {
		if reservedParams[key] || len(values) == 0 {
			continue
		}
		if filter, ok := internal.ParseFilterParam(key, values[0]); ok {
			filters = append(filters, filter)
		}
	}
	return filters
}

// parsePagination extracts page and page_size from query parameters
func parsePagination(queryParams url.Values) (int, int) {
	page := 1
	pageSize := 0

	if p := queryParams.Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if ps := queryParams.Get("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 {
			pageSize = parsed
		}
	}
	return page, pageSize
}

// APIResponse is the standard response format
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError maps a domain error onto an HTTP status and writes the response
func writeError(w http.ResponseWriter, err error) error {
	status := http.StatusInternalServerError
	var details interface{}

	switch e := err.(type) {
	case *fieldline.FieldError:
		status = statusForErrorType(e.Type)
	case *fieldline.ValidationErrors:
		status = http.StatusBadRequest
		details = e.ByField()
	case *fieldline.BatchErrors:
		status = http.StatusMultiStatus
		details = e.Errors
	}

	return writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
		Details: details,
	})
}

func statusForErrorType(errorType fieldline.ErrorType) int {
	switch errorType {
	case fieldline.ErrorTypeValidation:
		return http.StatusBadRequest
	case fieldline.ErrorTypeConflict, fieldline.ErrorTypeImmutable, fieldline.ErrorTypeReference:
		return http.StatusConflict
	case fieldline.ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) error {
	return writeJSON(w, statusCode, data)
}

// parseUUID parses a UUID string
func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
