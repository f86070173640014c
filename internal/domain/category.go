package domain

// Category is an entry of the static category list.
type Category struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Type  TransactionType `json:"type"`
	Color string          `json:"color"`
}

// DefaultCategories is the fixed list transactions reference by ID.
var DefaultCategories = []Category{
	// Income
	{ID: "salary", Name: "Salary", Type: TransactionTypeIncome, Color: "#22c55e"},
	{ID: "freelance", Name: "Freelance", Type: TransactionTypeIncome, Color: "#06b6d4"},
	{ID: "investments", Name: "Investments", Type: TransactionTypeIncome, Color: "#6366f1"},
	{ID: "business", Name: "Business", Type: TransactionTypeIncome, Color: "#ec4899"},
	{ID: "rental", Name: "Rental", Type: TransactionTypeIncome, Color: "#f59e0b"},
	{ID: "other-income", Name: "Other Income", Type: TransactionTypeIncome, Color: "#64748b"},

	// Expense
	{ID: "housing", Name: "Housing", Type: TransactionTypeExpense, Color: "#ef4444"},
	{ID: "transportation", Name: "Transportation", Type: TransactionTypeExpense, Color: "#f97316"},
	{ID: "groceries", Name: "Groceries", Type: TransactionTypeExpense, Color: "#84cc16"},
	{ID: "utilities", Name: "Utilities", Type: TransactionTypeExpense, Color: "#06b6d4"},
	{ID: "entertainment", Name: "Entertainment", Type: TransactionTypeExpense, Color: "#8b5cf6"},
	{ID: "food", Name: "Food", Type: TransactionTypeExpense, Color: "#f43f5e"},
	{ID: "shopping", Name: "Shopping", Type: TransactionTypeExpense, Color: "#ec4899"},
	{ID: "healthcare", Name: "Healthcare", Type: TransactionTypeExpense, Color: "#14b8a6"},
	{ID: "education", Name: "Education", Type: TransactionTypeExpense, Color: "#6366f1"},
	{ID: "personal", Name: "Personal Care", Type: TransactionTypeExpense, Color: "#d946ef"},
	{ID: "travel", Name: "Travel", Type: TransactionTypeExpense, Color: "#0ea5e9"},
	{ID: "insurance", Name: "Insurance", Type: TransactionTypeExpense, Color: "#64748b"},
	{ID: "gifts", Name: "Gifts & Donations", Type: TransactionTypeExpense, Color: "#f472b6"},
	{ID: "bills", Name: "Bills & Fees", Type: TransactionTypeExpense, Color: "#fb7185"},
	{ID: "other-expense", Name: "Other Expenses", Type: TransactionTypeExpense, Color: "#94a3b8"},
}

// IsKnownCategory reports whether id is in DefaultCategories.
func IsKnownCategory(id string) bool {
	for _, c := range DefaultCategories {
		if c.ID == id {
			return true
		}
	}
	return false
}
