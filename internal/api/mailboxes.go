package api

import (
	"errors"
	"net/http"

	"github.com/bluelime/bluesender/internal/auth"
	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/pkg/httputil"
	"github.com/bluelime/bluesender/internal/provision"
	"github.com/bluelime/bluesender/internal/repository/postgres"
)

type createMailboxRequest struct {
	// Address may be a full email or a bare local part; bare local parts
	// land on the default sending domain.
	Address  string `json:"address"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// CreateMailbox provisions a mailbox on the mail server and records its
// SMTP credentials.
func (h *Handlers) CreateMailbox(w http.ResponseWriter, r *http.Request) {
	var req createMailboxRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	m, err := h.Provision.Provision(r.Context(), auth.UserID(r.Context()), req.Address, req.Name, req.Password)
	switch {
	case errors.Is(err, provision.ErrBadAddress):
		httputil.BadRequest(w, "invalid mailbox address")
	case err != nil:
		httputil.JSON(w, http.StatusBadGateway, httputil.ErrorResponse{
			Error: "mailbox provisioning failed",
		})
	default:
		httputil.Created(w, m)
	}
}

// ListMailboxes returns the caller's mailboxes. Credentials never appear
// in the response.
func (h *Handlers) ListMailboxes(w http.ResponseWriter, r *http.Request) {
	boxes, err := h.Provision.ByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if boxes == nil {
		boxes = []domain.Mailbox{}
	}
	httputil.OK(w, boxes)
}

// requireMailbox loads a mailbox by ID and enforces ownership. Foreign
// mailboxes read as not found.
func (h *Handlers) requireMailbox(w http.ResponseWriter, r *http.Request, id string) (*domain.Mailbox, bool) {
	if id == "" {
		httputil.BadRequest(w, "mailbox_id is required")
		return nil, false
	}
	m, err := h.Provision.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, "mailbox not found")
		return nil, false
	}
	if err != nil {
		httputil.InternalError(w, err)
		return nil, false
	}
	if m.UserID != auth.UserID(r.Context()) {
		httputil.NotFound(w, "mailbox not found")
		return nil, false
	}
	return m, true
}
