package notifications

import (
	"strings"

	"github.com/juntavecinos/notifier/internal/domain"
	"github.com/juntavecinos/notifier/internal/preference"
)

// Report is the outcome of dispatching one content item over one channel.
type Report struct {
	DispatchID  string             `json:"dispatch_id"`
	Channel     preference.Channel `json:"channel"`
	ContentKind domain.ContentKind `json:"content_kind"`
	ContentID   string             `json:"content_id"`
	Success     bool               `json:"success"`
	Sent        int                `json:"sent"`
	Errors      int                `json:"errors"`
	Total       int                `json:"total"`
	Error       string             `json:"error,omitempty"`
	Failures    []Failure          `json:"failures"`
}

// Failure describes a recipient that could not be reached.
type Failure struct {
	RecipientID string `json:"recipient_id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Error       string `json:"error"`
	Retryable   bool   `json:"retryable"`
}

// Summary aggregates per-channel reports of a multi-channel notify call.
type Summary struct {
	ContentKind     domain.ContentKind `json:"content_kind"`
	ContentID       string             `json:"content_id"`
	Success         bool               `json:"success"`
	Sent            int                `json:"sent"`
	Errors          int                `json:"errors"`
	Total           int                `json:"total"`
	Skipped         []string           `json:"skipped"`
	AlreadyNotified []string           `json:"already_notified"`
	Channels        []*Report          `json:"channels"`
}

func (s *Summary) add(r *Report) {
	s.Channels = append(s.Channels, r)
	s.Sent += r.Sent
	s.Errors += r.Errors
	s.Total += r.Total
	if !r.Success {
		s.Success = false
	}
}

// maskAddress hides most of a delivery address before it leaves the service.
func maskAddress(address string) string {
	if at := strings.IndexByte(address, '@'); at > 0 {
		local, domainPart := address[:at], address[at:]
		if len(local) <= 2 {
			return strings.Repeat("*", len(local)) + domainPart
		}
		return local[:2] + strings.Repeat("*", len(local)-2) + domainPart
	}
	if len(address) <= 4 {
		return strings.Repeat("*", len(address))
	}
	return strings.Repeat("*", len(address)-4) + address[len(address)-4:]
}
