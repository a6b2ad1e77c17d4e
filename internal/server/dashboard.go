package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/pagesplit/pagesplit/internal/stats"
	"github.com/pagesplit/pagesplit/internal/store"
)

const layoutHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} - pagesplit</title>
<style>
body { font-family: -apple-system, sans-serif; margin: 2rem auto; max-width: 920px; color: #1a1a1a; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid #e0e0e0; }
th { font-size: 0.8rem; text-transform: uppercase; color: #666; }
.status { font-size: 0.8rem; padding: 0.15rem 0.5rem; border-radius: 3px; }
.status.active { background: #e6f4ea; color: #137333; }
.status.completed { background: #eee; color: #555; }
.winner { font-weight: 600; }
.muted { color: #888; }
a { color: #0b57d0; text-decoration: none; }
</style>
</head>
<body>
<h1><a href="/dashboard">pagesplit</a></h1>
{{.Content}}
</body>
</html>`

const listHTML = `<h2>Experiments</h2>
{{if not .Experiments}}<p class="muted">No experiments yet.</p>{{else}}
<table>
<tr><th>Landing page</th><th>Status</th><th>Variants</th><th>Impressions</th><th>Conversions</th><th>Started</th></tr>
{{range .Experiments}}
<tr>
<td><a href="/dashboard/experiment/{{.ID}}">{{.LandingPageID}}</a></td>
<td><span class="status {{.Status}}">{{.Status}}</span></td>
<td>{{.VariantCount}}</td>
<td>{{.Impressions}}</td>
<td>{{.Conversions}}</td>
<td>{{.Started}}</td>
</tr>
{{end}}
</table>{{end}}`

const detailHTML = `<h2>{{.LandingPageID}} <span class="status {{.Status}}">{{.Status}}</span></h2>
<p class="muted">Started {{.Started}}{{if .Ended}}, ended {{.Ended}}{{end}}</p>
<table>
<tr><th>Variant</th><th>Title</th><th>Impressions</th><th>Conversions</th><th>Rate</th><th>95% CI</th></tr>
{{range .Variants}}
<tr{{if .IsWinner}} class="winner"{{end}}>
<td>{{.ID}}{{if .IsControl}} (control){{end}}{{if .IsWinner}} &#127942;{{end}}</td>
<td>{{.Title}}</td>
<td>{{.Impressions}}</td>
<td>{{.Conversions}}</td>
<td>{{.Rate}}</td>
<td>{{.CI}}</td>
</tr>
{{end}}
</table>
<p>{{.SignificanceNote}}</p>`

type dashboardListItem struct {
	ID            string
	LandingPageID string
	Status        string
	VariantCount  int
	Impressions   int64
	Conversions   int64
	Started       string
}

type dashboardVariant struct {
	ID          string
	Title       string
	Impressions int64
	Conversions int64
	Rate        string
	CI          string
	IsControl   bool
	IsWinner    bool
}

type dashboardDetail struct {
	LandingPageID    string
	Status           string
	Started          string
	Ended            string
	Variants         []dashboardVariant
	SignificanceNote string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// Handle logout
	if r.URL.Query().Get("logout") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:   tokenCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		http.Error(w, "Failed to load experiments", http.StatusInternalServerError)
		return
	}

	items := make([]dashboardListItem, len(experiments))
	for i, exp := range experiments {
		items[i] = dashboardListItem{
			ID:            exp.ID,
			LandingPageID: exp.LandingPageID,
			Status:        string(exp.Status),
			VariantCount:  len(exp.Variants),
			Impressions:   exp.TotalImpressions(),
			Conversions:   exp.TotalConversions(),
			Started:       exp.StartDate.Format("Jan 2, 2006"),
		}
	}

	s.renderDashboard(w, "Experiments", listHTML, map[string]any{"Experiments": items})
}

func (s *Server) handleDashboardExperiment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/dashboard/experiment/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	exp, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	result := stats.Analyze(exp)

	variants := make([]dashboardVariant, len(result.Variants))
	for i, v := range result.Variants {
		ci := "N/A"
		if v.Impressions > 0 {
			ci = fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower*100, v.CIUpper*100)
		}
		variants[i] = dashboardVariant{
			ID:          v.VariantID,
			Title:       v.Title,
			Impressions: v.Impressions,
			Conversions: v.Conversions,
			Rate:        fmt.Sprintf("%.2f%%", v.Rate*100),
			CI:          ci,
			IsControl:   i == 0,
			IsWinner:    v.VariantID == exp.WinningVariantID,
		}
	}

	detail := dashboardDetail{
		LandingPageID:    exp.LandingPageID,
		Status:           string(exp.Status),
		Started:          exp.StartDate.Format("Jan 2, 2006"),
		Variants:         variants,
		SignificanceNote: significanceNote(exp, result),
	}
	if exp.EndDate != nil {
		detail.Ended = exp.EndDate.Format("Jan 2, 2006")
	}

	s.renderDashboard(w, exp.LandingPageID, detailHTML, detail)
}

func significanceNote(exp *store.Experiment, result *stats.Result) string {
	if exp.Status == store.StatusCompleted {
		if exp.WinningVariantID != "" {
			return fmt.Sprintf("Completed with winner %s.", exp.WinningVariantID)
		}
		return "Completed without a determined winner."
	}

	leading := result.Variants[result.LeadingVariant]
	confPct := result.ConfidenceLevel * 100
	if result.Confident {
		return fmt.Sprintf("%.1f%% confident %q is the winner.", confPct, leading.Title)
	}
	if confPct >= 90 {
		return fmt.Sprintf("%.1f%% confident %q beats control (not yet significant).", confPct, leading.Title)
	}
	return "Not enough data to determine a winner."
}

func (s *Server) renderDashboard(w http.ResponseWriter, title, contentTemplate string, data any) {
	contentTmpl, err := template.New("content").Parse(contentTemplate)
	if err != nil {
		http.Error(w, "Failed to parse template", http.StatusInternalServerError)
		return
	}

	var contentBuf bytes.Buffer
	if err := contentTmpl.Execute(&contentBuf, data); err != nil {
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}

	layoutTmpl, err := template.New("layout").Parse(layoutHTML)
	if err != nil {
		http.Error(w, "Failed to parse layout", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	layoutTmpl.Execute(w, struct {
		Title   string
		Content template.HTML
	}{
		Title:   title,
		Content: template.HTML(contentBuf.String()),
	})
}
