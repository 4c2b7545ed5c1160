package httpapi

import sr "github.com/ineyio/searchrouter"

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Backends      []string `json:"backends"`
}

// QuotaResponse is returned by GET /quota.
type QuotaResponse struct {
	Backends map[string]sr.QuotaStatus `json:"backends"`
}

// ResetResponse is returned by POST /quota/reset.
type ResetResponse struct {
	Reset string `json:"reset"`
}

// StrategiesResponse is returned by GET /strategies.
type StrategiesResponse struct {
	Strategies []sr.Strategy `json:"strategies"`
}
