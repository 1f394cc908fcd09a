package analysis

import (
	"fmt"
	"strings"

	"github.com/ashureev/smartfi/internal/domain"
	"github.com/shopspring/decimal"
)

// Net worth above this many currency units counts as a strong foundation.
var wealthThreshold = decimal.NewFromInt(1_000_000)

// Classification labels used in the fallback narrative.
const (
	LabelStrongFoundation = "strong foundation"
	LabelBuildWealth      = "focus on building wealth"

	CreditExcellent = "excellent"
	CreditGood      = "good"
	CreditFair      = "fair"
	CreditPoor      = "poor"
	CreditNoData    = "no data"
)

// ClassifyNetWorth labels a total net worth.
func ClassifyNetWorth(total decimal.Decimal) string {
	if total.GreaterThan(wealthThreshold) {
		return LabelStrongFoundation
	}
	return LabelBuildWealth
}

// ClassifyCreditScore places a score into one of the fixed bands.
func ClassifyCreditScore(score int64) string {
	switch {
	case score >= 750:
		return CreditExcellent
	case score >= 650:
		return CreditGood
	case score >= 550:
		return CreditFair
	case score > 0:
		return CreditPoor
	default:
		return CreditNoData
	}
}

var netWorthInsight = map[string]string{
	LabelStrongFoundation: "You have a strong financial foundation",
	LabelBuildWealth:      "Focus on building your wealth through systematic investments",
}

var creditInsight = map[string]string{
	CreditExcellent: "Excellent credit score - you can access the best loan rates",
	CreditGood:      "Good credit score - maintain this level",
	CreditFair:      "Fair credit score - work on improving your credit score",
	CreditPoor:      "Poor credit score - work on improving your credit score",
	CreditNoData:    "No credit data available - connect your credit report to track your score",
}

// Fallback renders the deterministic summary for rec. It makes no external
// calls and always returns non-empty text; absent values count as zero.
func Fallback(rec domain.Record) string {
	nw, _ := rec.NetWorth()
	total := nw.TotalUnits()
	var score int64
	if cr, ok := rec.CreditReport(); ok {
		score = cr.Score
	}
	income, expenses := decimal.Zero, decimal.Zero
	if bt, ok := rec.BankTransactions(); ok {
		income, expenses = bt.MonthlyIncome, bt.MonthlyExpenses
	}

	worthLabel := ClassifyNetWorth(total)
	creditLabel := ClassifyCreditScore(score)

	var b strings.Builder
	b.WriteString("**Financial Summary** (Fallback Analysis)\n\n")
	fmt.Fprintf(&b, "**Net Worth**: %s (%s)\n", FormatRupees(total), worthLabel)
	if nw != nil && len(nw.Assets) > 0 {
		fmt.Fprintf(&b, "**Total Assets**: %s\n", FormatRupees(nw.AssetTotal()))
	}
	if nw != nil && len(nw.Liabilities) > 0 {
		fmt.Fprintf(&b, "**Total Liabilities**: %s\n", FormatRupees(nw.LiabilityTotal()))
	}
	if score > 0 {
		fmt.Fprintf(&b, "**Credit Score**: %d (%s)\n", score, creditLabel)
	} else {
		fmt.Fprintf(&b, "**Credit Score**: Not available (%s)\n", creditLabel)
	}
	if income.IsPositive() {
		rate := income.Sub(expenses).Div(income).Mul(decimal.NewFromInt(100))
		fmt.Fprintf(&b, "**Monthly Income**: %s\n", FormatRupees(income))
		fmt.Fprintf(&b, "**Monthly Expenses**: %s\n", FormatRupees(expenses))
		fmt.Fprintf(&b, "**Savings Rate**: %s%%\n", rate.StringFixed(1))
	}

	b.WriteString("\n**Key Insights**:\n")
	fmt.Fprintf(&b, "- %s\n", netWorthInsight[worthLabel])
	fmt.Fprintf(&b, "- %s\n", creditInsight[creditLabel])
	if top, ok := nw.LargestAsset(); ok {
		fmt.Fprintf(&b, "- Your largest holding is %s at %s\n", attributeLabel(top.Attribute), FormatRupees(top.Value.Units))
	}

	b.WriteString("\n**Recommendations**:\n")
	b.WriteString("- Maintain an emergency fund of 6-12 months expenses\n")
	b.WriteString("- Continue with SIP investments if you have active mutual funds\n")
	b.WriteString("- Review and optimize your insurance coverage\n")

	b.WriteString("\n*Note: This is a basic analysis. For detailed insights, ensure all your financial accounts are connected.*")
	return b.String()
}

// attributeLabel turns ASSET_TYPE_MUTUAL_FUND into "mutual fund".
func attributeLabel(attr string) string {
	attr = strings.TrimPrefix(attr, "ASSET_TYPE_")
	attr = strings.TrimPrefix(attr, "LIABILITY_TYPE_")
	return strings.ToLower(strings.ReplaceAll(attr, "_", " "))
}

// FormatRupees renders whole rupees with thousands separators.
func FormatRupees(d decimal.Decimal) string {
	digits := d.Truncate(0).Abs().String()

	var b strings.Builder
	if d.Truncate(0).IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString("₹")
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
