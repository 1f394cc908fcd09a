package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Payload is the sum type of per-source results. The concrete types are
// NetWorth, CreditReport, EPFDetails, MutualFunds and BankTransactions.
type Payload interface {
	Source() SourceKey
	Raw() json.RawMessage
	isPayload()
}

// Money is the remote API's currency amount. Units arrives either as a JSON
// string or a number.
type Money struct {
	CurrencyCode string          `json:"currencyCode"`
	Units        decimal.Decimal `json:"units"`
	Nanos        int64           `json:"nanos,omitempty"`
}

// AttributeValue is one asset or liability line of the net worth response.
type AttributeValue struct {
	Attribute string `json:"netWorthAttribute"`
	Value     Money  `json:"value"`
}

type rawPayload struct {
	raw json.RawMessage
}

func (p rawPayload) Raw() json.RawMessage { return p.raw }
func (rawPayload) isPayload()             {}

// NetWorth is the fetch_net_worth result.
type NetWorth struct {
	rawPayload
	Total       *Money
	Assets      []AttributeValue
	Liabilities []AttributeValue
}

func (*NetWorth) Source() SourceKey { return NetWorthSource }

// TotalUnits returns the total net worth in whole units, zero when absent.
func (n *NetWorth) TotalUnits() decimal.Decimal {
	if n == nil || n.Total == nil {
		return decimal.Zero
	}
	return n.Total.Units
}

// AssetTotal sums the asset lines in whole units.
func (n *NetWorth) AssetTotal() decimal.Decimal {
	if n == nil {
		return decimal.Zero
	}
	return sumUnits(n.Assets)
}

// LiabilityTotal sums the liability lines in whole units.
func (n *NetWorth) LiabilityTotal() decimal.Decimal {
	if n == nil {
		return decimal.Zero
	}
	return sumUnits(n.Liabilities)
}

// LargestAsset returns the asset line with the highest value.
func (n *NetWorth) LargestAsset() (AttributeValue, bool) {
	if n == nil || len(n.Assets) == 0 {
		return AttributeValue{}, false
	}
	best := n.Assets[0]
	for _, a := range n.Assets[1:] {
		if a.Value.Units.GreaterThan(best.Value.Units) {
			best = a
		}
	}
	return best, true
}

func sumUnits(values []AttributeValue) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v.Value.Units)
	}
	return total
}

// CreditReport is the fetch_credit_report result.
type CreditReport struct {
	rawPayload
	Score int64
}

func (*CreditReport) Source() SourceKey { return CreditReportSource }

// EPFDetails is the fetch_epf_details result. It is kept opaque.
type EPFDetails struct {
	rawPayload
}

func (*EPFDetails) Source() SourceKey { return EPFDetailsSource }

// MutualFunds is the fetch_mutual_fund_transactions result. It is kept opaque.
type MutualFunds struct {
	rawPayload
}

func (*MutualFunds) Source() SourceKey { return MutualFundsSource }

// BankTransactions is the fetch_bank_transactions result.
type BankTransactions struct {
	rawPayload
	MonthlyIncome   decimal.Decimal
	MonthlyExpenses decimal.Decimal
}

func (*BankTransactions) Source() SourceKey { return BankTransactionsSource }

type netWorthWire struct {
	NetWorthResponse struct {
		AssetValues        []AttributeValue `json:"assetValues"`
		LiabilityValues    []AttributeValue `json:"liabilityValues"`
		TotalNetWorthValue *Money           `json:"totalNetWorthValue"`
	} `json:"netWorthResponse"`
}

type creditReportWire struct {
	CreditReport *struct {
		CreditScore decimal.Decimal `json:"creditScore"`
	} `json:"creditReport"`
	CreditReports []struct {
		CreditReportData struct {
			Score struct {
				BureauScore decimal.Decimal `json:"bureauScore"`
			} `json:"score"`
		} `json:"creditReportData"`
	} `json:"creditReports"`
}

type bankTransactionsWire struct {
	BankTransactions struct {
		MonthlyAnalytics struct {
			TotalIncome   decimal.Decimal `json:"totalIncome"`
			TotalExpenses decimal.Decimal `json:"totalExpenses"`
		} `json:"monthlyAnalytics"`
	} `json:"bankTransactions"`
}

// DecodePayload builds the typed payload for key from a raw result document.
// Only invalid JSON is an error; typed fields are filled best-effort and the
// raw document is always kept.
func DecodePayload(key SourceKey, raw json.RawMessage) (Payload, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("decode %s payload: invalid JSON", key)
	}
	base := rawPayload{raw: append(json.RawMessage(nil), raw...)}

	switch key {
	case NetWorthSource:
		var w netWorthWire
		_ = json.Unmarshal(raw, &w)
		return &NetWorth{
			rawPayload:  base,
			Total:       w.NetWorthResponse.TotalNetWorthValue,
			Assets:      w.NetWorthResponse.AssetValues,
			Liabilities: w.NetWorthResponse.LiabilityValues,
		}, nil
	case CreditReportSource:
		var w creditReportWire
		_ = json.Unmarshal(raw, &w)
		p := &CreditReport{rawPayload: base}
		switch {
		case w.CreditReport != nil:
			p.Score = w.CreditReport.CreditScore.IntPart()
		case len(w.CreditReports) > 0:
			p.Score = w.CreditReports[0].CreditReportData.Score.BureauScore.IntPart()
		}
		return p, nil
	case EPFDetailsSource:
		return &EPFDetails{rawPayload: base}, nil
	case MutualFundsSource:
		return &MutualFunds{rawPayload: base}, nil
	case BankTransactionsSource:
		var w bankTransactionsWire
		_ = json.Unmarshal(raw, &w)
		return &BankTransactions{
			rawPayload:      base,
			MonthlyIncome:   w.BankTransactions.MonthlyAnalytics.TotalIncome,
			MonthlyExpenses: w.BankTransactions.MonthlyAnalytics.TotalExpenses,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSource, int(key))
	}
}
