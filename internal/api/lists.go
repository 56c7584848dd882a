package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bluelime/bluesender/internal/auth"
	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/pkg/httputil"
	"github.com/bluelime/bluesender/internal/repository/postgres"
	"github.com/bluelime/bluesender/internal/validation"
)

type createListRequest struct {
	Name   string   `json:"name"`
	Emails []string `json:"emails"`
}

// CreateList uploads a batch of addresses and starts validation.
func (h *Handlers) CreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	list, err := h.Validation.CreateList(r.Context(), auth.UserID(r.Context()), req.Name, req.Emails)
	switch {
	case errors.Is(err, validation.ErrEmptyBatch):
		httputil.BadRequest(w, "no valid email addresses in batch")
	case err != nil:
		// Dispatch failures still return the stored list so the client
		// can retry from the unvalidated state.
		if list != nil {
			httputil.JSON(w, http.StatusBadGateway, map[string]any{
				"error": "validation dispatch failed",
				"list":  list,
			})
			return
		}
		httputil.InternalError(w, err)
	default:
		httputil.Created(w, list)
	}
}

// ListLists returns the caller's validation lists.
func (h *Handlers) ListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.Lists.ByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if lists == nil {
		lists = []domain.ValidationList{}
	}
	httputil.OK(w, lists)
}

// GetList returns one list with its counts.
func (h *Handlers) GetList(w http.ResponseWriter, r *http.Request) {
	list, ok := h.requireList(w, r)
	if !ok {
		return
	}
	httputil.OK(w, list)
}

// DeleteList removes a list with its contacts and results.
func (h *Handlers) DeleteList(w http.ResponseWriter, r *http.Request) {
	list, ok := h.requireList(w, r)
	if !ok {
		return
	}
	if err := h.Validation.DeleteList(r.Context(), list.ID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// RevalidateList re-submits a list to the validation provider.
func (h *Handlers) RevalidateList(w http.ResponseWriter, r *http.Request) {
	list, ok := h.requireList(w, r)
	if !ok {
		return
	}
	err := h.Validation.Revalidate(r.Context(), list.ID)
	switch {
	case errors.Is(err, validation.ErrListTerminal):
		httputil.Error(w, http.StatusConflict, "list already finished validating")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
	}
}

// ListResults returns per-address results for a completed list. Lists
// still processing return whatever results have landed so far.
func (h *Handlers) ListResults(w http.ResponseWriter, r *http.Request) {
	list, ok := h.requireList(w, r)
	if !ok {
		return
	}
	results, err := h.Results.ByList(r.Context(), list.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if results == nil {
		results = []domain.ValidationResult{}
	}
	httputil.OK(w, map[string]any{
		"list":    list,
		"results": results,
	})
}

// DeleteResult removes one validation result row. Results belonging to
// another user's list are reported as missing.
func (h *Handlers) DeleteResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.Results.Get(r.Context(), chi.URLParam(r, "resultID"))
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, "result not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	list, err := h.Lists.Get(r.Context(), res.ListID)
	if err != nil || list.UserID != auth.UserID(r.Context()) {
		httputil.NotFound(w, "result not found")
		return
	}

	if err := h.Results.Delete(r.Context(), res.ID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ListContacts returns the deduplicated addresses stored for a list.
func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	list, ok := h.requireList(w, r)
	if !ok {
		return
	}
	contacts, err := h.Contacts.ByList(r.Context(), list.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	httputil.OK(w, contacts)
}

// ReconcileNow triggers a reconcile pass outside the background cadence.
func (h *Handlers) ReconcileNow(w http.ResponseWriter, r *http.Request) {
	if err := h.Reconciler.ReconcileNow(r.Context()); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "reconciled"})
}

// requireList loads the list from the URL and enforces ownership. Lists
// belonging to other users read as not found.
func (h *Handlers) requireList(w http.ResponseWriter, r *http.Request) (*domain.ValidationList, bool) {
	id := chi.URLParam(r, "listID")
	list, err := h.Lists.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, "list not found")
		return nil, false
	}
	if err != nil {
		httputil.InternalError(w, err)
		return nil, false
	}
	if list.UserID != auth.UserID(r.Context()) {
		httputil.NotFound(w, "list not found")
		return nil, false
	}
	return list, true
}
