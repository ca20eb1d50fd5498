package quality

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
)

// WriteReport renders results as a table followed by a one line summary.
func WriteReport(w io.Writer, results []Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault

	t.AppendHeader(table.Row{"suite", "expectation", "column", "result", "observed"})
	passed := 0
	for _, r := range results {
		status := "FAIL"
		observed := r.Observed
		switch {
		case r.Err != nil:
			status = "ERROR"
			observed = r.Err.Error()
		case r.Success:
			status = "PASS"
			passed++
		}
		t.AppendRow(table.Row{r.Suite, r.Expectation, r.Column, status, observed})
	}
	t.Render()

	fmt.Fprintf(w, "\n%d of %d expectations passed\n", passed, len(results))
}
