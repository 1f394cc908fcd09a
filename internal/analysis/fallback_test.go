package analysis

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ashureev/smartfi/internal/domain"
	"github.com/shopspring/decimal"
)

func recordOf(t *testing.T, docs map[domain.SourceKey]string) domain.Record {
	t.Helper()
	payloads := make(map[domain.SourceKey]domain.Payload, len(docs))
	for key, doc := range docs {
		p, err := domain.DecodePayload(key, json.RawMessage(doc))
		if err != nil {
			t.Fatalf("decode %s: %v", key, err)
		}
		payloads[key] = p
	}
	return domain.NewRecord(payloads)
}

func TestClassifyCreditScore(t *testing.T) {
	tests := []struct {
		score int64
		want  string
	}{
		{0, CreditNoData},
		{-5, CreditNoData},
		{1, CreditPoor},
		{549, CreditPoor},
		{550, CreditFair},
		{649, CreditFair},
		{650, CreditGood},
		{749, CreditGood},
		{750, CreditExcellent},
		{900, CreditExcellent},
	}
	for _, tt := range tests {
		if got := ClassifyCreditScore(tt.score); got != tt.want {
			t.Errorf("ClassifyCreditScore(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestClassifyNetWorth(t *testing.T) {
	if got := ClassifyNetWorth(decimal.NewFromInt(1_000_000)); got != LabelBuildWealth {
		t.Errorf("threshold itself should not count as strong, got %q", got)
	}
	if got := ClassifyNetWorth(decimal.NewFromInt(1_000_001)); got != LabelStrongFoundation {
		t.Errorf("expected strong foundation above threshold, got %q", got)
	}
}

func TestFallbackEmptyRecord(t *testing.T) {
	text := Fallback(domain.NewRecord(nil))

	for _, want := range []string{
		CreditNoData,
		LabelBuildWealth,
		"₹0",
		"6-12 months",
		"SIP",
		"insurance",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("fallback missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Savings Rate") {
		t.Error("savings rate should be omitted without income")
	}
}

func TestFallbackWithData(t *testing.T) {
	rec := recordOf(t, map[domain.SourceKey]string{
		domain.NetWorthSource:         `{"netWorthResponse":{"totalNetWorthValue":{"currencyCode":"INR","units":"2500000"}}}`,
		domain.CreditReportSource:     `{"creditReport":{"creditScore":"780"}}`,
		domain.BankTransactionsSource: `{"bankTransactions":{"monthlyAnalytics":{"totalIncome":100000,"totalExpenses":75000}}}`,
	})

	text := Fallback(rec)
	for _, want := range []string{
		"₹2,500,000",
		LabelStrongFoundation,
		"780 (excellent)",
		"Savings Rate**: 25.0%",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("fallback missing %q:\n%s", want, text)
		}
	}
}

func TestFallbackAssetBreakdown(t *testing.T) {
	rec := recordOf(t, map[domain.SourceKey]string{
		domain.NetWorthSource: `{"netWorthResponse":{
			"assetValues":[
				{"netWorthAttribute":"ASSET_TYPE_SAVINGS_ACCOUNTS","value":{"currencyCode":"INR","units":"200000"}},
				{"netWorthAttribute":"ASSET_TYPE_MUTUAL_FUND","value":{"currencyCode":"INR","units":"850000"}}
			],
			"liabilityValues":[
				{"netWorthAttribute":"LIABILITY_TYPE_VEHICLE_LOAN","value":{"currencyCode":"INR","units":"150000"}}
			],
			"totalNetWorthValue":{"currencyCode":"INR","units":"900000"}}}`,
	})

	text := Fallback(rec)
	for _, want := range []string{
		"**Total Assets**: ₹1,050,000",
		"**Total Liabilities**: ₹150,000",
		"largest holding is mutual fund at ₹850,000",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("fallback missing %q:\n%s", want, text)
		}
	}
}

func TestFallbackOmitsBreakdownWithoutLines(t *testing.T) {
	rec := recordOf(t, map[domain.SourceKey]string{
		domain.NetWorthSource: `{"netWorthResponse":{"totalNetWorthValue":{"units":"5000"}}}`,
	})
	text := Fallback(rec)
	for _, absent := range []string{"Total Assets", "Total Liabilities", "largest holding"} {
		if strings.Contains(text, absent) {
			t.Errorf("fallback should omit %q:\n%s", absent, text)
		}
	}
}

func TestFormatRupees(t *testing.T) {
	tests := []struct {
		in   decimal.Decimal
		want string
	}{
		{decimal.Zero, "₹0"},
		{decimal.NewFromInt(999), "₹999"},
		{decimal.NewFromInt(1000), "₹1,000"},
		{decimal.RequireFromString("1234567.89"), "₹1,234,567"},
		{decimal.NewFromInt(-45000), "-₹45,000"},
	}
	for _, tt := range tests {
		if got := FormatRupees(tt.in); got != tt.want {
			t.Errorf("FormatRupees(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
