package domain

import (
	"encoding/json"
	"time"
)

// Record is an immutable snapshot of the aggregate record. A key is present
// only once its fetch has succeeded.
type Record struct {
	payloads map[SourceKey]Payload
}

// NewRecord copies m into a new snapshot.
func NewRecord(m map[SourceKey]Payload) Record {
	cp := make(map[SourceKey]Payload, len(m))
	for k, v := range m {
		if v != nil {
			cp[k] = v
		}
	}
	return Record{payloads: cp}
}

// Get returns the payload for key.
func (r Record) Get(key SourceKey) (Payload, bool) {
	p, ok := r.payloads[key]
	return p, ok
}

// Has reports whether key is present.
func (r Record) Has(key SourceKey) bool {
	_, ok := r.payloads[key]
	return ok
}

// Len returns the number of present keys.
func (r Record) Len() int {
	return len(r.payloads)
}

// Raw returns the raw document for key, or nil when absent.
func (r Record) Raw(key SourceKey) json.RawMessage {
	if p, ok := r.payloads[key]; ok {
		return p.Raw()
	}
	return nil
}

// NetWorth returns the net worth payload if present.
func (r Record) NetWorth() (*NetWorth, bool) {
	p, ok := r.payloads[NetWorthSource].(*NetWorth)
	return p, ok
}

// CreditReport returns the credit report payload if present.
func (r Record) CreditReport() (*CreditReport, bool) {
	p, ok := r.payloads[CreditReportSource].(*CreditReport)
	return p, ok
}

// BankTransactions returns the bank transactions payload if present.
func (r Record) BankTransactions() (*BankTransactions, bool) {
	p, ok := r.payloads[BankTransactionsSource].(*BankTransactions)
	return p, ok
}

// MarshalJSON renders present keys as their raw documents.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.payloads))
	for k, p := range r.payloads {
		out[k.String()] = p.Raw()
	}
	return json.Marshal(out)
}

// FetchState is the per-source loading/error state.
type FetchState struct {
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	LoginURL  string    `json:"loginUrl,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Snapshot pairs the aggregate record with every source's fetch state.
type Snapshot struct {
	Record Record                   `json:"data"`
	States map[SourceKey]FetchState `json:"states"`
}

// AnalysisMessage is one entry of the analysis conversation history.
type AnalysisMessage struct {
	SessionID string    `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
