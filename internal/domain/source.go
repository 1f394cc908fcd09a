package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSource is returned when a source name cannot be parsed.
var ErrUnknownSource = errors.New("unknown source")

// SourceKey identifies one of the independently fetched financial data sources.
type SourceKey int

const (
	NetWorthSource SourceKey = iota
	CreditReportSource
	EPFDetailsSource
	MutualFundsSource
	BankTransactionsSource
)

// AllSources lists every source key in display order.
var AllSources = []SourceKey{
	NetWorthSource,
	CreditReportSource,
	EPFDetailsSource,
	MutualFundsSource,
	BankTransactionsSource,
}

var sourceMeta = map[SourceKey]struct {
	name, slug, tool string
}{
	NetWorthSource:         {"netWorth", "net-worth", "fetch_net_worth"},
	CreditReportSource:     {"creditReport", "credit-report", "fetch_credit_report"},
	EPFDetailsSource:       {"epfDetails", "epf-details", "fetch_epf_details"},
	MutualFundsSource:      {"mutualFunds", "mutual-funds", "fetch_mutual_fund_transactions"},
	BankTransactionsSource: {"bankTransactions", "bank-transactions", "fetch_bank_transactions"},
}

// String returns the camelCase name used in JSON documents.
func (k SourceKey) String() string {
	if m, ok := sourceMeta[k]; ok {
		return m.name
	}
	return fmt.Sprintf("source(%d)", int(k))
}

// Slug returns the URL path form of the key.
func (k SourceKey) Slug() string {
	return sourceMeta[k].slug
}

// ToolName returns the remote tool that serves this source.
func (k SourceKey) ToolName() string {
	return sourceMeta[k].tool
}

// MarshalText implements encoding.TextMarshaler so keys work as JSON map keys.
func (k SourceKey) MarshalText() ([]byte, error) {
	if _, ok := sourceMeta[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSource, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SourceKey) UnmarshalText(b []byte) error {
	parsed, err := ParseSourceKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseSourceKey accepts the camelCase name, the slug or the tool name.
func ParseSourceKey(s string) (SourceKey, error) {
	s = strings.TrimSpace(s)
	for k, m := range sourceMeta {
		if strings.EqualFold(s, m.name) || s == m.slug || s == m.tool {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSource, s)
}
