package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/pkg/httputil"
	"github.com/bluelime/bluesender/internal/webmail"
)

// imapCreds builds IMAP credentials from a stored mailbox row. The IMAP
// host falls back to the mailbox's SMTP host, which serves both on
// single-server deployments.
func (h *Handlers) imapCreds(m *domain.Mailbox) webmail.Credentials {
	host := h.Mail.IMAPHost
	if host == "" {
		host = m.SMTPHost
	}
	port := h.Mail.IMAPPort
	if port == 0 {
		port = 993
	}
	return webmail.Credentials{
		Host:            host,
		Port:            port,
		Email:           m.SMTPUser,
		Password:        m.SMTPPass,
		AllowSelfSigned: h.Mail.AllowSelfSigned,
	}
}

// webmailMailbox resolves the mailbox_id query parameter with ownership
// enforcement.
func (h *Handlers) webmailMailbox(w http.ResponseWriter, r *http.Request) (*domain.Mailbox, bool) {
	return h.requireMailbox(w, r, r.URL.Query().Get("mailbox_id"))
}

// WebmailFolders lists the folders of a provisioned mailbox.
func (h *Handlers) WebmailFolders(w http.ResponseWriter, r *http.Request) {
	mbox, ok := h.webmailMailbox(w, r)
	if !ok {
		return
	}
	folders, err := h.Webmail.ListFolders(r.Context(), h.imapCreds(mbox))
	if err != nil {
		httputil.JSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: "mail server unavailable"})
		return
	}
	if folders == nil {
		folders = []webmail.Folder{}
	}
	httputil.OK(w, folders)
}

// WebmailMessages lists message summaries, newest first.
func (h *Handlers) WebmailMessages(w http.ResponseWriter, r *http.Request) {
	mbox, ok := h.webmailMailbox(w, r)
	if !ok {
		return
	}
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = "INBOX"
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := h.Webmail.ListMessages(r.Context(), h.imapCreds(mbox), folder, limit)
	if err != nil {
		httputil.JSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: "mail server unavailable"})
		return
	}
	if msgs == nil {
		msgs = []webmail.MessageSummary{}
	}
	httputil.OK(w, msgs)
}

// WebmailMessage fetches one full message by UID.
func (h *Handlers) WebmailMessage(w http.ResponseWriter, r *http.Request) {
	mbox, ok := h.webmailMailbox(w, r)
	if !ok {
		return
	}
	uid, err := strconv.ParseUint(chi.URLParam(r, "uid"), 10, 32)
	if err != nil {
		httputil.BadRequest(w, "invalid message uid")
		return
	}
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = "INBOX"
	}

	msg, err := h.Webmail.FetchMessage(r.Context(), h.imapCreds(mbox), folder, uint32(uid))
	if err != nil {
		httputil.JSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: "mail server unavailable"})
		return
	}
	httputil.OK(w, msg)
}

// WebmailDelete moves a message to trash, or expunges it when it is
// already there.
func (h *Handlers) WebmailDelete(w http.ResponseWriter, r *http.Request) {
	mbox, ok := h.webmailMailbox(w, r)
	if !ok {
		return
	}
	uid, err := strconv.ParseUint(chi.URLParam(r, "uid"), 10, 32)
	if err != nil {
		httputil.BadRequest(w, "invalid message uid")
		return
	}
	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = "INBOX"
	}

	if err := h.Webmail.DeleteMessage(r.Context(), h.imapCreds(mbox), folder, uint32(uid)); err != nil {
		httputil.JSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: "mail server unavailable"})
		return
	}
	httputil.NoContent(w)
}

// WebmailEmptyTrash permanently deletes everything in the trash folder.
func (h *Handlers) WebmailEmptyTrash(w http.ResponseWriter, r *http.Request) {
	mbox, ok := h.webmailMailbox(w, r)
	if !ok {
		return
	}
	n, err := h.Webmail.EmptyTrash(r.Context(), h.imapCreds(mbox))
	if err != nil {
		httputil.JSON(w, http.StatusBadGateway, httputil.ErrorResponse{Error: "mail server unavailable"})
		return
	}
	httputil.OK(w, map[string]int{"deleted": n})
}
