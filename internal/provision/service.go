// Package provision creates sending mailboxes: it asks the mail-admin
// gateway to create the account, then records the SMTP credentials the
// send worker and webmail will use.
package provision

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bluelime/bluesender/internal/config"
	"github.com/bluelime/bluesender/internal/domain"
	"github.com/bluelime/bluesender/internal/pkg/logger"
)

// ErrBadAddress is returned for addresses that cannot be provisioned.
var ErrBadAddress = errors.New("invalid mailbox address")

// Gateway provisions accounts on the mail server. CreateMailbox must be
// idempotent at the domain level: it ensures the domain exists before
// adding the account.
type Gateway interface {
	CreateMailbox(ctx context.Context, localPart, domain, name, password string) error
	Simulated() bool
}

// Store persists mailbox rows.
type Store interface {
	Create(ctx context.Context, m *domain.Mailbox) error
	Get(ctx context.Context, id string) (*domain.Mailbox, error)
	ByUser(ctx context.Context, userID string) ([]domain.Mailbox, error)
}

// Service wires the gateway and the store together.
type Service struct {
	gateway       Gateway
	store         Store
	mail          config.MailConfig
	defaultDomain string
}

// NewService creates a provisioning service.
func NewService(gateway Gateway, store Store, mail config.MailConfig, defaultDomain string) *Service {
	return &Service{gateway: gateway, store: store, mail: mail, defaultDomain: defaultDomain}
}

// Provision creates a mailbox on the mail server and records it. address
// may be a bare local part, which lands on the default sending domain.
// An empty password gets a generated one; either way the credentials are
// stored so the send worker can authenticate later.
func (s *Service) Provision(ctx context.Context, userID, address, name, password string) (*domain.Mailbox, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, ErrBadAddress
	}

	localPart, dom, ok := domain.SplitAddress(address)
	if !ok {
		if strings.Contains(address, "@") {
			return nil, ErrBadAddress
		}
		localPart, dom = address, s.defaultDomain
	}
	email := localPart + "@" + dom

	if name == "" {
		name = localPart
	}
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return nil, fmt.Errorf("generate password: %w", err)
		}
	}

	if err := s.gateway.CreateMailbox(ctx, localPart, dom, name, password); err != nil {
		return nil, fmt.Errorf("mail server rejected mailbox %s: %w", logger.RedactEmail(email), err)
	}

	smtpHost := s.mail.SMTPHost
	if smtpHost == "" {
		smtpHost = "mail." + dom
	}

	m := &domain.Mailbox{
		ID:       uuid.New().String(),
		UserID:   userID,
		Email:    email,
		Name:     name,
		SMTPHost: smtpHost,
		SMTPPort: s.mail.SMTPPort,
		SMTPUser: email,
		SMTPPass: password,
		Active:   true,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}

	logger.Info("mailbox provisioned",
		"mailbox_id", m.ID,
		"email", logger.RedactEmail(email),
		"simulated", s.gateway.Simulated())
	return m, nil
}

// Get returns one mailbox row.
func (s *Service) Get(ctx context.Context, id string) (*domain.Mailbox, error) {
	return s.store.Get(ctx, id)
}

// ByUser lists a user's mailboxes.
func (s *Service) ByUser(ctx context.Context, userID string) ([]domain.Mailbox, error) {
	return s.store.ByUser(ctx, userID)
}

// Simulated reports whether provisioning is running against a simulated
// mail server.
func (s *Service) Simulated() bool { return s.gateway.Simulated() }

func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
