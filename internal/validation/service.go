// Package validation implements the email-validation pipeline: list
// creation with batched contact inserts, batch dispatch to the external
// provider, and the status reconciler that ingests results.
package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/pkg/logger"
	"github.com/bluelime/bluesender/internal/truelist"
)

var (
	// ErrEmptyBatch is returned when a submitted batch contains no
	// usable addresses.
	ErrEmptyBatch = errors.New("empty address batch")

	// ErrListTerminal is returned when validation is requested for a
	// list that already completed or failed.
	ErrListTerminal = errors.New("list already in a terminal state")
)

// Provider is the external validation API consumed by the pipeline.
// *truelist.Client satisfies it.
type Provider interface {
	StartBatch(ctx context.Context, emails []string, listName, listID string) (*truelist.BatchAck, error)
	BatchStatus(ctx context.Context, listID string) (*truelist.BatchStatus, error)
}

// ListStore is the persistence surface the pipeline needs for lists.
type ListStore interface {
	Get(ctx context.Context, id string) (*domain.ValidationList, error)
	ByStatus(ctx context.Context, status domain.ListStatus) ([]domain.ValidationList, error)
	CreateWithContacts(ctx context.Context, l *domain.ValidationList, emails []string) error
	UpdateStatus(ctx context.Context, id string, from, to domain.ListStatus) error
	RevertToUnvalidated(ctx context.Context, id string) error
	CompleteWithResults(ctx context.Context, listID string, results []domain.ValidationResult) error
	MarkFailed(ctx context.Context, listID string) error
	Delete(ctx context.Context, id string) error
}

// ContactStore reads a list's addresses back for re-dispatch.
type ContactStore interface {
	EmailsByList(ctx context.Context, listID string) ([]string, error)
}

// Service orchestrates list creation and validation dispatch.
type Service struct {
	lists    ListStore
	contacts ContactStore
	provider Provider
}

// NewService creates the validation service.
func NewService(lists ListStore, contacts ContactStore, provider Provider) *Service {
	return &Service{lists: lists, contacts: contacts, provider: provider}
}

// CreateList dedups the raw batch, creates the list (status processing)
// with its contacts in one all-or-nothing transaction, and dispatches the
// batch to the provider. A failed dispatch reverts the list to
// unvalidated and surfaces the error so the caller can retry.
func (s *Service) CreateList(ctx context.Context, userID, name string, rawEmails []string) (*domain.ValidationList, error) {
	emails := domain.DedupEmails(rawEmails)
	if len(emails) == 0 {
		return nil, ErrEmptyBatch
	}

	list := &domain.ValidationList{
		UserID: userID,
		Name:   name,
		Status: domain.ListProcessing,
	}
	if err := s.lists.CreateWithContacts(ctx, list, emails); err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}

	if err := s.Dispatch(ctx, emails, name, list.ID); err != nil {
		if revErr := s.lists.RevertToUnvalidated(ctx, list.ID); revErr != nil {
			logger.Error("failed to revert list after dispatch error",
				"list_id", list.ID, "error", revErr)
		}
		list.Status = domain.ListUnvalidated
		return list, fmt.Errorf("dispatch list %s: %w", list.ID, err)
	}

	logger.Info("validation list created and dispatched",
		"list_id", list.ID, "name", name, "total", len(emails))
	return list, nil
}

// Dispatch forwards a batch to the provider. It returns as soon as the
// provider acknowledges; completion is the reconciler's business.
// Re-dispatching the same list is safe: provider batches are keyed by
// list ID and result ingestion is upsert-based.
func (s *Service) Dispatch(ctx context.Context, emails []string, listName, listID string) error {
	if len(emails) == 0 {
		return ErrEmptyBatch
	}
	if _, err := s.provider.StartBatch(ctx, emails, listName, listID); err != nil {
		return fmt.Errorf("provider dispatch: %w", err)
	}
	return nil
}

// Revalidate (re-)dispatches an existing list. An unvalidated list moves
// to processing first; a processing list is simply re-dispatched (the
// idempotent retry path for a dropped first dispatch). Terminal lists
// are rejected.
func (s *Service) Revalidate(ctx context.Context, listID string) error {
	list, err := s.lists.Get(ctx, listID)
	if err != nil {
		return err
	}

	switch list.Status {
	case domain.ListUnvalidated:
		if err := s.lists.UpdateStatus(ctx, listID, domain.ListUnvalidated, domain.ListProcessing); err != nil {
			return fmt.Errorf("start validation: %w", err)
		}
	case domain.ListProcessing:
		// retry of an in-flight batch, nothing to transition
	default:
		return ErrListTerminal
	}

	emails, err := s.contacts.EmailsByList(ctx, listID)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	if err := s.Dispatch(ctx, emails, list.Name, listID); err != nil {
		if list.Status == domain.ListUnvalidated {
			if revErr := s.lists.RevertToUnvalidated(ctx, listID); revErr != nil {
				logger.Error("failed to revert list after dispatch error",
					"list_id", listID, "error", revErr)
			}
		}
		return err
	}
	return nil
}

// DeleteList removes a list with its contacts and results.
func (s *Service) DeleteList(ctx context.Context, listID string) error {
	return s.lists.Delete(ctx, listID)
}
