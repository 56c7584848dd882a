// Package api exposes the HTTP surface: validation lists, mailbox
// provisioning, the outbound queue and webmail access.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bluelime/bluesender/internal/auth"
	"github.com/bluelime/bluesender/internal/config"
	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/pkg/httputil"
	"github.com/bluelime/bluesender/internal/webmail"
	"github.com/bluelime/bluesender/internal/worker"
)

// ValidationService drives the list lifecycle.
type ValidationService interface {
	CreateList(ctx context.Context, userID, name string, rawEmails []string) (*domain.ValidationList, error)
	Revalidate(ctx context.Context, listID string) error
	DeleteList(ctx context.Context, listID string) error
}

// ListReader reads validation lists.
type ListReader interface {
	Get(ctx context.Context, id string) (*domain.ValidationList, error)
	ByUser(ctx context.Context, userID string) ([]domain.ValidationList, error)
}

// ResultStore reads and deletes per-address validation results.
type ResultStore interface {
	ByList(ctx context.Context, listID string) ([]domain.ValidationResult, error)
	Get(ctx context.Context, id string) (*domain.ValidationResult, error)
	Delete(ctx context.Context, id string) error
}

// ContactReader reads the raw contacts of a list.
type ContactReader interface {
	ByList(ctx context.Context, listID string) ([]domain.Contact, error)
}

// Reconciling lets operators force a reconcile pass and inspect the
// background loop.
type Reconciling interface {
	ReconcileNow(ctx context.Context) error
	LastRunAt() time.Time
}

// ProvisionService creates and lists sending mailboxes.
type ProvisionService interface {
	Provision(ctx context.Context, userID, address, name, password string) (*domain.Mailbox, error)
	Get(ctx context.Context, id string) (*domain.Mailbox, error)
	ByUser(ctx context.Context, userID string) ([]domain.Mailbox, error)
	Simulated() bool
}

// QueueStore enqueues and inspects outbound email rows.
type QueueStore interface {
	Enqueue(ctx context.Context, e *domain.OutboundEmail) error
	Get(ctx context.Context, id string) (*domain.OutboundEmail, error)
	ByStatusForMailboxes(ctx context.Context, status domain.QueueStatus, mailboxIDs []string, limit int) ([]domain.OutboundEmail, error)
}

// WorkerStats exposes send worker counters for the health endpoint.
type WorkerStats interface {
	Stats() worker.SendStats
}

// WebmailClient performs IMAP operations with per-mailbox credentials.
type WebmailClient interface {
	ListFolders(ctx context.Context, creds webmail.Credentials) ([]webmail.Folder, error)
	ListMessages(ctx context.Context, creds webmail.Credentials, folder string, limit int) ([]webmail.MessageSummary, error)
	FetchMessage(ctx context.Context, creds webmail.Credentials, folder string, uid uint32) (*webmail.Message, error)
	DeleteMessage(ctx context.Context, creds webmail.Credentials, folder string, uid uint32) error
	EmptyTrash(ctx context.Context, creds webmail.Credentials) (int, error)
}

// Handlers holds every dependency the HTTP layer needs.
type Handlers struct {
	Validation ValidationService
	Lists      ListReader
	Results    ResultStore
	Contacts   ContactReader
	Reconciler Reconciling
	Provision  ProvisionService
	Queue      QueueStore
	Worker     WorkerStats
	Webmail    WebmailClient
	Mail       config.MailConfig
}

// SetupRoutes builds the router. The health endpoint is open; everything
// under /api requires a valid bearer token.
func SetupRoutes(h *Handlers, verifier *auth.Verifier) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.bluelime.pro", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(verifier.Middleware)

		r.Route("/lists", func(r chi.Router) {
			r.Get("/", h.ListLists)
			r.Post("/", h.CreateList)
			r.Route("/{listID}", func(r chi.Router) {
				r.Get("/", h.GetList)
				r.Delete("/", h.DeleteList)
				r.Post("/revalidate", h.RevalidateList)
				r.Get("/results", h.ListResults)
				r.Get("/contacts", h.ListContacts)
			})
		})
		r.Post("/validation/reconcile", h.ReconcileNow)
		r.Delete("/results/{resultID}", h.DeleteResult)

		r.Route("/mailboxes", func(r chi.Router) {
			r.Get("/", h.ListMailboxes)
			r.Post("/", h.CreateMailbox)
		})

		r.Route("/emails", func(r chi.Router) {
			r.Get("/", h.ListEmails)
			r.Post("/", h.EnqueueEmail)
			r.Get("/{emailID}", h.GetEmail)
		})

		r.Route("/webmail", func(r chi.Router) {
			r.Get("/folders", h.WebmailFolders)
			r.Get("/messages", h.WebmailMessages)
			r.Get("/messages/{uid}", h.WebmailMessage)
			r.Delete("/messages/{uid}", h.WebmailDelete)
			r.Post("/trash/empty", h.WebmailEmptyTrash)
		})
	})

	return r
}

// HealthCheck reports service liveness plus worker counters. Open to
// unauthenticated callers so load balancers can probe it.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if h.Provision != nil {
		resp["provisioning_simulated"] = h.Provision.Simulated()
	}
	if h.Worker != nil {
		resp["send_worker"] = h.Worker.Stats()
	}
	if h.Reconciler != nil {
		if t := h.Reconciler.LastRunAt(); !t.IsZero() {
			resp["last_reconcile_at"] = t.UTC().Format(time.RFC3339)
		}
	}
	httputil.OK(w, resp)
}
