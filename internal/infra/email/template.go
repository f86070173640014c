// Package email renders notification bodies and delivers them through the
// Resend HTTP API.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer implements port.TemplateRenderer.
type Renderer struct {
	budgetAlert  *template.Template
	welcome      *template.Template
	dashboardURL string
}

// NewRenderer parses the embedded templates. appURL is the public base URL
// used for the dashboard link.
func NewRenderer(appURL string) (*Renderer, error) {
	budgetAlert, err := template.ParseFS(templateFS, "templates/budget_alert.html")
	if err != nil {
		return nil, fmt.Errorf("parse budget alert template: %w", err)
	}
	welcome, err := template.ParseFS(templateFS, "templates/welcome.html")
	if err != nil {
		return nil, fmt.Errorf("parse welcome template: %w", err)
	}
	if appURL == "" {
		appURL = "http://localhost:3000"
	}
	return &Renderer{
		budgetAlert:  budgetAlert,
		welcome:      welcome,
		dashboardURL: strings.TrimRight(appURL, "/") + "/dashboard",
	}, nil
}

type stat struct {
	Label string
	Value string
}

type budgetAlertView struct {
	UserName     string
	Month        string
	Year         int
	AccountName  string
	Percentage   string
	Stats        []stat
	BarStyle     template.CSS
	ActionText   string
	DashboardURL string
}

// Render produces the HTML body for tpl. Unknown types get the welcome body.
func (r *Renderer) Render(tpl *domain.EmailTemplate) (string, error) {
	var buf bytes.Buffer

	if tpl.Type != domain.EmailTypeBudgetAlert {
		if err := r.welcome.Execute(&buf, struct{ UserName string }{tpl.UserName}); err != nil {
			return "", fmt.Errorf("render welcome: %w", err)
		}
		return buf.String(), nil
	}

	if err := r.budgetAlert.Execute(&buf, r.budgetAlertView(tpl)); err != nil {
		return "", fmt.Errorf("render budget alert: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) budgetAlertView(tpl *domain.EmailTemplate) budgetAlertView {
	d := tpl.Data
	warning := d.PercentageUsed > domain.BudgetWarningPct

	color := "#3b82f6"
	action := "You're on track with your budget. Keep up the good work!"
	if warning {
		color = "#ef4444"
		action = "You're close to exceeding your budget! Consider reviewing your expenses."
	}

	width := math.Min(math.Max(d.PercentageUsed, 0), 100)

	return budgetAlertView{
		UserName:    tpl.UserName,
		Month:       d.Month,
		Year:        d.Year,
		AccountName: d.AccountName,
		Percentage:  fmt.Sprintf("%.1f", d.PercentageUsed),
		Stats: []stat{
			{Label: "Monthly Budget", Value: money(d.BudgetAmount)},
			{Label: "Spent So Far", Value: money(d.TotalExpenses)},
			{Label: "Remaining", Value: money(d.BudgetAmount - d.TotalExpenses)},
		},
		BarStyle: template.CSS(fmt.Sprintf(
			"height:100%%;border-radius:4px;width:%.1f%%;background-color:%s;", width, color)),
		ActionText:   action,
		DashboardURL: r.dashboardURL,
	}
}

// money formats v as "$1,234.5" with at most two decimals.
func money(v float64) string {
	return "$" + humanize.Commaf(math.Round(v*100)/100)
}
