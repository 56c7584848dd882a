package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bluelime/bluesender/internal/auth"
	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/pkg/httputil"
	"github.com/bluelime/bluesender/internal/repository/postgres"
)

type enqueueEmailRequest struct {
	MailboxID string `json:"mailbox_id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	BodyHTML  string `json:"body_html"`
}

// EnqueueEmail queues one message for the send worker. The row is
// created pending; the caller polls it for the final state.
func (h *Handlers) EnqueueEmail(w http.ResponseWriter, r *http.Request) {
	var req enqueueEmailRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if !domain.ValidEmailFormat(req.To) {
		httputil.BadRequest(w, "invalid recipient address")
		return
	}
	if req.Subject == "" {
		httputil.BadRequest(w, "subject is required")
		return
	}

	mbox, ok := h.requireMailbox(w, r, req.MailboxID)
	if !ok {
		return
	}
	if !mbox.Active {
		httputil.Error(w, http.StatusConflict, "mailbox is inactive")
		return
	}

	e := &domain.OutboundEmail{
		MailboxID: mbox.ID,
		ToEmail:   req.To,
		Subject:   req.Subject,
		BodyHTML:  req.BodyHTML,
	}
	if err := h.Queue.Enqueue(r.Context(), e); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, e)
}

// GetEmail returns one queue row for status inspection.
func (h *Handlers) GetEmail(w http.ResponseWriter, r *http.Request) {
	e, err := h.Queue.Get(r.Context(), chi.URLParam(r, "emailID"))
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, "email not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if _, ok := h.requireMailbox(w, r, e.MailboxID); !ok {
		return
	}
	httputil.OK(w, e)
}

// ListEmails lists queue rows by status, defaulting to pending.
func (h *Handlers) ListEmails(w http.ResponseWriter, r *http.Request) {
	status := domain.QueueStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.QueuePending
	}
	switch status {
	case domain.QueuePending, domain.QueueSending, domain.QueueSent, domain.QueueFailed:
	default:
		httputil.BadRequest(w, "unknown status")
		return
	}

	// Only rows sent from the caller's own mailboxes are visible; the
	// scope is applied in the query so the page never fills with other
	// tenants' traffic.
	boxes, err := h.Provision.ByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	owned := make([]string, 0, len(boxes))
	for _, b := range boxes {
		owned = append(owned, b.ID)
	}

	rows, err := h.Queue.ByStatusForMailboxes(r.Context(), status, owned, 50)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.OutboundEmail{}
	}
	httputil.OK(w, rows)
}
