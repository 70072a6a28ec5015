package lease

import "time"

// SampleReport is the canned report shown before a user has paid.
func SampleReport() *Report {
	return &Report{
		ID:        "sample",
		Summary:   "This is a standard US apartment lease agreement with moderate overall risk. Found 3 high-risk clauses that need attention.",
		RiskScore: 62,
		Clauses: []Clause{
			{
				ID:       "1",
				Title:    "Late Fee Clause",
				Risk:     RiskHigh,
				Summary:  "Late payment incurs $50 + $10/day penalty, which is above average.",
				Original: "A late fee of $50 plus $10 per day will be charged...",
			},
			{
				ID:       "2",
				Title:    "Early Termination",
				Risk:     RiskHigh,
				Summary:  "Early termination requires 2 months rent as penalty.",
				Original: "Tenant shall pay liquidated damages equal to two months rent...",
			},
			{
				ID:       "3",
				Title:    "Security Deposit Return",
				Risk:     RiskMedium,
				Summary:  "Security deposit will be returned within 45 days of move-out.",
				Original: "Security deposit shall be returned within 45 days...",
			},
			{
				ID:       "4",
				Title:    "Maintenance Responsibility",
				Risk:     RiskLow,
				Summary:  "Landlord handles major repairs, tenant handles minor repairs under $100.",
				Original: "Landlord shall maintain premises in habitable condition...",
			},
		},
		GeneratedAt: time.Now(),
		Sample:      true,
	}
}
