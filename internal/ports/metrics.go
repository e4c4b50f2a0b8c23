package ports

import (
	"time"

	"github.com/bnema/terms-cli/internal/domain"
)

const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCoalesced = "coalesced"
	OutcomeDiscarded = "discarded"
	OutcomeStale     = "stale"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
)

type Metrics interface {
	ObserveFetch(mode, outcome string, elapsed time.Duration)
	ObserveMutation(kind domain.MutationKind, outcome string)
	ObserveRefresh(outcome string)
	SetConversations(n int)
}

type NopMetrics struct{}

func (NopMetrics) ObserveFetch(string, string, time.Duration)  {}
func (NopMetrics) ObserveMutation(domain.MutationKind, string) {}
func (NopMetrics) ObserveRefresh(string)                       {}
func (NopMetrics) SetConversations(int)                        {}
