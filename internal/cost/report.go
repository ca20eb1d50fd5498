package cost

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
)

func usd(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// WriteReport renders an estimate with its per-service breakdown.
func WriteReport(w io.Writer, title string, e Estimate) {
	fmt.Fprintf(w, "Cloudflare Data Platform cost estimate: %s\n\n", title)

	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.Style().Format.Header = text.FormatDefault
	for _, row := range []table.Row{
		{"Monthly total", usd(e.Total)},
		{"  Fixed", usd(e.Fixed)},
		{"  Variable", usd(e.Variable)},
		{"Yearly total", usd(e.Yearly())},
	} {
		summary.AppendRow(row)
	}
	summary.Render()
	fmt.Fprintln(w)

	b := e.Breakdown
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"service", "item", "cost"})
	for _, row := range []table.Row{
		{"Workers", "plan", usd(b.Workers.Fixed)},
		{"Workers", "requests", usd(b.Workers.Requests)},
		{"R2", "storage", usd(b.R2.Storage)},
		{"R2", "class A operations", usd(b.R2.ClassA)},
		{"R2", "class B operations", usd(b.R2.ClassB)},
		{"R2 Data Catalog", "beta", usd(b.R2Catalog)},
		{"D1", "storage", usd(b.D1.Storage)},
		{"D1", "read", usd(b.D1.Read)},
		{"D1", "write", usd(b.D1.Write)},
		{"Workers KV", "storage", usd(b.KV.Storage)},
		{"Workers KV", "read", usd(b.KV.Read)},
		{"Workers KV", "write", usd(b.KV.Write)},
		{"Analytics Engine", "writes", usd(b.AnalyticsEngine)},
		{"GitHub Actions", "linux minutes", usd(b.GitHubActions)},
		{"", "total", usd(e.Total)},
	} {
		t.AppendRow(row)
	}
	t.Render()
}
