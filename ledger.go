package searchrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Unlimited is the limit (and remaining) sentinel for backends without a budget.
const Unlimited int64 = -1

//go:generate mockgen -destination=internal/mocks/mock_ledger.go -package=mocks github.com/ineyio/searchrouter QuotaLedger

// QuotaLedger records per-backend usage against a monthly limit.
//
// Unknown backends have no budget: HasBudget reports false, Remaining reports 0,
// and Charge and Reset are no-ops. Errors are reserved for storage failures.
type QuotaLedger interface {
	// HasBudget reports whether backend is unlimited or has used < limit.
	HasBudget(ctx context.Context, backend string) (bool, error)

	// Charge adds count to the backend's usage and persists the change.
	Charge(ctx context.Context, backend string, count int64) error

	// Remaining returns limit - used, Unlimited, or 0 for unknown backends.
	Remaining(ctx context.Context, backend string) (int64, error)

	// Status returns the usage of every known backend.
	Status(ctx context.Context) (map[string]QuotaStatus, error)

	// Reset zeroes one backend's usage, or every backend's when backend is "".
	Reset(ctx context.Context, backend string) error
}

// LimitSetter is implemented by ledgers whose limits can be configured at runtime.
type LimitSetter interface {
	SetLimit(ctx context.Context, backend string, limit int64) error
}

// DefaultLimits returns the built-in monthly limits per backend.
func DefaultLimits() map[string]int64 {
	return map[string]int64{
		BackendSerpAPI:    250,
		BackendTavily:     1000,
		BackendDuckDuckGo: Unlimited,
		BackendSerper:     2500,
		BackendBing:       1000,
	}
}

// QuotaStatus is the usage summary of one backend.
type QuotaStatus struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// NewQuotaStatus computes the status of a backend from its used and limit values.
// Percentage is the share of the limit still available, rounded to one decimal.
func NewQuotaStatus(used, limit int64) QuotaStatus {
	if limit == Unlimited {
		return QuotaStatus{Used: used, Limit: Unlimited, Remaining: Unlimited, Percentage: 100.0}
	}

	remaining := max(limit-used, 0)
	var pct float64
	if limit > 0 {
		pct = math.Round(float64(remaining)/float64(limit)*1000) / 10
	}
	return QuotaStatus{Used: used, Limit: limit, Remaining: remaining, Percentage: pct}
}

// IsUnlimited reports whether the backend has no limit.
func (s QuotaStatus) IsUnlimited() bool { return s.Limit == Unlimited }

// MarshalJSON renders unlimited limit and remaining values as "unlimited".
func (s QuotaStatus) MarshalJSON() ([]byte, error) {
	if !s.IsUnlimited() {
		type plain QuotaStatus
		return json.Marshal(plain(s))
	}
	return json.Marshal(struct {
		Used       int64   `json:"used"`
		Limit      string  `json:"limit"`
		Remaining  string  `json:"remaining"`
		Percentage float64 `json:"percentage"`
	}{s.Used, "unlimited", "unlimited", s.Percentage})
}

// FormatStatus renders a status map as a human-readable table sorted by backend.
func FormatStatus(status map[string]QuotaStatus) string {
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Search Backend Quota Status:")
	for _, name := range names {
		s := status[name]
		if s.IsUnlimited() {
			fmt.Fprintf(&b, "\n  %-15s | Used: %4d | Unlimited", name, s.Used)
			continue
		}
		fmt.Fprintf(&b, "\n  %-15s | %4d/%4d (%5.1f%% remaining)", name, s.Used, s.Limit, s.Percentage)
	}
	return b.String()
}

// noopLedger grants every backend an unlimited budget and records nothing.
type noopLedger struct{}

func (noopLedger) HasBudget(context.Context, string) (bool, error)       { return true, nil }
func (noopLedger) Charge(context.Context, string, int64) error           { return nil }
func (noopLedger) Remaining(context.Context, string) (int64, error)      { return Unlimited, nil }
func (noopLedger) Status(context.Context) (map[string]QuotaStatus, error) { return map[string]QuotaStatus{}, nil }
func (noopLedger) Reset(context.Context, string) error                   { return nil }
