package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/middleware"
)

const (
	defaultLimit             = 10
	defaultNotificationLimit = 20
)

// actor returns the authenticated user. Routes are mounted behind the auth
// middleware, so a missing actor is a wiring bug and reported as 401.
func actor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "missing actor"))
	}
	return id, ok
}

// pathID binds the {id} path parameter as a UUID.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		requestError(w, fmt.Sprintf("invalid id: %v", err))
		return uuid.Nil, false
	}
	return id, true
}

// queryUUID binds an optional UUID query parameter.
func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	var id *uuid.UUID
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &id); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}

// pagination binds ?page= and ?limit=. Missing or non-positive values fall
// back to page 1 and defaultLimit; limit is capped at 100.
func pagination(r *http.Request, defaultLimit int) (domain.PaginationParams, error) {
	var page, limit *int
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &page); err != nil {
		return domain.PaginationParams{}, fmt.Errorf("invalid page: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		return domain.PaginationParams{}, fmt.Errorf("invalid limit: %w", err)
	}
	return domain.NewPaginationParams(page, limit, defaultLimit), nil
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("payload_too_large", "request body too large"))
			return false
		}
		requestError(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// CountResponse is the body of every count endpoint.
type CountResponse struct {
	Count int64 `json:"count"`
}
