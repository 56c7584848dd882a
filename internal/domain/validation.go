package domain

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// ListStatus is the lifecycle state of a validation list.
type ListStatus string

const (
	ListUnvalidated ListStatus = "unvalidated"
	ListProcessing  ListStatus = "processing"
	ListCompleted   ListStatus = "completed"
	ListFailed      ListStatus = "failed"
)

// CanTransitionTo reports whether the lifecycle state machine allows moving
// to the target status. Completed and failed are terminal; the only way out
// is deleting the whole list.
func (s ListStatus) CanTransitionTo(target ListStatus) bool {
	switch s {
	case ListUnvalidated:
		return target == ListProcessing
	case ListProcessing:
		return target == ListCompleted || target == ListFailed
	default:
		return false
	}
}

// ValidationList is a named batch of email addresses submitted for validation.
type ValidationList struct {
	ID                 string     `json:"id" db:"id"`
	UserID             string     `json:"user_id" db:"user_id"`
	Name               string     `json:"name" db:"name"`
	TotalEmails        int        `json:"total_emails" db:"total_emails"`
	ProcessedEmails    int        `json:"processed_emails" db:"processed_emails"`
	DeliverableCount   int        `json:"deliverable_count" db:"deliverable_count"`
	UndeliverableCount int        `json:"undeliverable_count" db:"undeliverable_count"`
	RiskyCount         int        `json:"risky_count" db:"risky_count"`
	UnknownCount       int        `json:"unknown_count" db:"unknown_count"`
	Status             ListStatus `json:"status" db:"status"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// CountsConsistent checks the list invariant: processed equals the sum of
// outcome counts and never exceeds the total.
func (l ValidationList) CountsConsistent() bool {
	sum := l.DeliverableCount + l.UndeliverableCount + l.RiskyCount + l.UnknownCount
	return sum == l.ProcessedEmails && l.ProcessedEmails <= l.TotalEmails
}

// Contact is one address belonging to a list, pending validation.
type Contact struct {
	ID        string    `json:"id" db:"id"`
	ListID    string    `json:"list_id" db:"list_id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ResultClass is the coarse classification of a validated address.
type ResultClass string

const (
	ResultDeliverable   ResultClass = "deliverable"
	ResultUndeliverable ResultClass = "undeliverable"
	ResultRisky         ResultClass = "risky"
	ResultUnknown       ResultClass = "unknown"
	ResultPending       ResultClass = "pending"
)

// ValidationResult is the per-address outcome from the validation provider.
type ValidationResult struct {
	ID           string          `json:"id" db:"id"`
	ListID       string          `json:"validation_list_id" db:"validation_list_id"`
	Email        string          `json:"email" db:"email"`
	Result       ResultClass     `json:"result" db:"result"`
	FormatValid  bool            `json:"format_valid" db:"format_valid"`
	DomainValid  bool            `json:"domain_valid" db:"domain_valid"`
	SMTPValid    bool            `json:"smtp_valid" db:"smtp_valid"`
	CatchAll     bool            `json:"catch_all" db:"catch_all"`
	Disposable   bool            `json:"disposable" db:"disposable"`
	FreeEmail    bool            `json:"free_email" db:"free_email"`
	Reason       string          `json:"reason" db:"reason"`
	Deliverable  bool            `json:"deliverable" db:"deliverable"`
	FullResponse json.RawMessage `json:"full_response,omitempty" db:"full_response"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

var emailRe = regexp.MustCompile(`^[\w.+-]+@[\w-]+(\.[\w-]+)+$`)

// ValidEmailFormat is the syntactic pre-check applied before any external
// call. It is deliberately loose; the provider has the final word.
func ValidEmailFormat(addr string) bool {
	return emailRe.MatchString(strings.TrimSpace(addr))
}

// DedupEmails lowercases, trims, and deduplicates a raw address batch while
// preserving first-seen order. Blank and syntactically invalid entries are
// dropped before the batch ever reaches the provider.
func DedupEmails(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] || !ValidEmailFormat(e) {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
