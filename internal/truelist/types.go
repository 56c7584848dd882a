package truelist

import (
	"encoding/json"

	"github.com/bluelime/bluesender/internal/domain"
)

// BatchState is the provider-side lifecycle of a validation batch.
type BatchState string

const (
	BatchProcessing BatchState = "processing"
	BatchCompleted  BatchState = "completed"
	BatchFailed     BatchState = "failed"
)

// StartBatchRequest is the dispatch payload. Batches are keyed by the
// caller's list ID, which is what makes re-dispatching a list safe.
type StartBatchRequest struct {
	Emails   []string `json:"emails"`
	ListName string   `json:"list_name"`
	ListID   string   `json:"list_id"`
}

// BatchAck is the immediate response to a dispatch call.
type BatchAck struct {
	ID    string     `json:"id"`
	State BatchState `json:"state"`
}

// EmailResult is the provider's verdict for one address.
type EmailResult struct {
	Address     string `json:"address"`
	State       string `json:"state"`     // ok | risky | failed | unknown
	SubState    string `json:"sub_state"` // e.g. email_ok, invalid_mailbox, accept_all
	FormatValid bool   `json:"format_valid"`
	DomainValid bool   `json:"domain_valid"`
	SMTPValid   bool   `json:"smtp_valid"`
	CatchAll    bool   `json:"catch_all"`
	Disposable  bool   `json:"disposable"`
	FreeEmail   bool   `json:"free_email"`

	// Raw is the untouched provider JSON for this address, preserved so
	// the stored result can be re-inspected without another API call.
	Raw json.RawMessage `json:"-"`
}

// BatchStatus is the full status of a batch as reported by the provider.
type BatchStatus struct {
	ID      string        `json:"id"`
	State   BatchState    `json:"state"`
	Message string        `json:"message,omitempty"`
	Results []EmailResult `json:"results"`
}

// Classify maps a provider state to the coarse result classification.
func Classify(state string) domain.ResultClass {
	switch state {
	case "ok":
		return domain.ResultDeliverable
	case "failed":
		return domain.ResultUndeliverable
	case "risky":
		return domain.ResultRisky
	default:
		return domain.ResultUnknown
	}
}
