package core

import (
	"bytes"
	"encoding/json"
	"time"
)

// MetadataPaidOffDate is the reserved metadata key holding the RFC 3339
// timestamp at which the balance reached zero. Only the payment processor writes it.
const MetadataPaidOffDate = "paidOffDate"

// Metadata is an open map of caller-defined JSON values attached to a debt.
type Metadata map[string]json.RawMessage

// Clone returns an independent copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// PaidOffDate returns the payoff timestamp if the debt has been paid off.
func (m Metadata) PaidOffDate() (time.Time, bool) {
	raw, ok := m[MetadataPaidOffDate]
	if !ok {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// WithPaidOffDate returns a copy of m with the payoff timestamp set to t.
func (m Metadata) WithPaidOffDate(t time.Time) Metadata {
	out := m.Clone()
	raw, _ := json.Marshal(t.UTC().Format(time.RFC3339Nano))
	out[MetadataPaidOffDate] = raw
	return out
}

// Merge returns a copy of m with patch applied. A JSON null in patch removes the key.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := m.Clone()
	for k, v := range patch {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			delete(out, k)
			continue
		}
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// HasReservedKey reports whether m tries to set a key owned by the system.
func (m Metadata) HasReservedKey() bool {
	_, ok := m[MetadataPaidOffDate]
	return ok
}
