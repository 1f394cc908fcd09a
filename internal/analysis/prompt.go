package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/smartfi/internal/domain"
)

// DefaultQuestion is asked when the caller supplies none.
const DefaultQuestion = "Provide a comprehensive financial analysis"

type promptContext struct {
	NetWorth         json.RawMessage `json:"netWorth,omitempty"`
	CreditReport     json.RawMessage `json:"creditReport,omitempty"`
	BankTransactions json.RawMessage `json:"bankTransactions,omitempty"`
	MutualFunds      json.RawMessage `json:"mutualFunds,omitempty"`
	EPFDetails       json.RawMessage `json:"epfDetails,omitempty"`
	UserQuestion     string          `json:"userQuestion"`
}

const promptTemplate = `You are a highly knowledgeable AI financial advisor. Analyze the following financial data and provide:

1. A clear summary of their financial position (assets, liabilities, net worth)
2. Personalized insights based on the data (investment strategy, risk analysis, debt advice)
3. Actionable recommendations to improve or optimize their financial health

User Question: %s

Financial Data: %s

Please provide a comprehensive, actionable financial analysis in a friendly, professional tone.`

// BuildPrompt serializes the present sources of rec and the question into
// the advisor prompt. Absent sources are left out of the data document.
func BuildPrompt(question string, rec domain.Record) (string, error) {
	data, err := json.Marshal(promptContext{
		NetWorth:         rec.Raw(domain.NetWorthSource),
		CreditReport:     rec.Raw(domain.CreditReportSource),
		BankTransactions: rec.Raw(domain.BankTransactionsSource),
		MutualFunds:      rec.Raw(domain.MutualFundsSource),
		EPFDetails:       rec.Raw(domain.EPFDetailsSource),
		UserQuestion:     question,
	})
	if err != nil {
		return "", fmt.Errorf("marshal financial context: %w", err)
	}
	return fmt.Sprintf(promptTemplate, question, data), nil
}
