package quota

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Snapshot is the durable ledger state.
type Snapshot struct {
	LastReset time.Time        `json:"last_reset"`
	Quotas    map[string]Entry `json:"quotas"`
}

// Entry is the usage of one backend. Limit -1 means unlimited.
type Entry struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	s.Quotas = maps.Clone(s.Quotas)
	return s
}

// UnmarshalJSON accepts RFC 3339 timestamps as well as zone-less ISO-8601
// timestamps, which are read in local time.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		LastReset string           `json:"last_reset"`
		Quotas    map[string]Entry `json:"quotas"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Quotas = raw.Quotas
	s.LastReset = time.Time{}
	if raw.LastReset == "" {
		return nil
	}
	t, err := ParseTimestamp(raw.LastReset)
	if err != nil {
		return err
	}
	s.LastReset = t
	return nil
}

// ParseTimestamp parses an ISO-8601 timestamp with or without a zone offset.
func ParseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("quota: invalid timestamp %q", v)
}
