package domain

// ============================================================
// Abuse decisions
// ============================================================

// DenyReason explains a denied Decision.
type DenyReason string

const (
	DenyReasonNone      DenyReason = ""
	DenyReasonRateLimit DenyReason = "rate_limit"
	DenyReasonBot       DenyReason = "bot"
	DenyReasonShield    DenyReason = "shield"
)

// DecisionRequest asks the abuse guard whether a caller may proceed.
type DecisionRequest struct {
	UserID    string
	Requested int
	IP        string
	UserAgent string
}

// Decision is the abuse guard's verdict. Remaining and ResetSeconds are only
// meaningful for rate-limit denials.
type Decision struct {
	Allowed      bool
	Reason       DenyReason
	Remaining    int
	ResetSeconds int
}

// ============================================================
// Email
// ============================================================

// Email template types.
const (
	EmailTypeBudgetAlert = "budget-alert"
)

// EmailMessage is what the mailer delivers.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

// BudgetAlertData are the parameters of the budget-alert email.
type BudgetAlertData struct {
	PercentageUsed float64
	BudgetAmount   float64
	TotalExpenses  float64
	Month          string
	Year           int
	AccountName    string
}

// EmailTemplate selects and parameterises an email body.
type EmailTemplate struct {
	UserName string
	Type     string
	Data     BudgetAlertData
}
