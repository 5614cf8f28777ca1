package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/NeuralTrust/PromptArmor/pkg/domain/safety"
)

const (
	HeadlineBlocked = "❌ Prompt blocked due to policy violation"
	HeadlineAllowed = "✅ Prompt is safe and allowed"

	passMarker = "✅"
	warnMarker = "⚠️"
)

// Format renders the verdict as a console report. It is deterministic for
// a given verdict and latency.
func Format(verdict *safety.Verdict, latencyMs int64) string {
	var b strings.Builder

	b.WriteString("\n🛡️ Model Armor Evaluation Summary\n")
	if verdict.Blocked() {
		b.WriteString(HeadlineBlocked)
	} else {
		b.WriteString(HeadlineAllowed)
	}
	b.WriteString("\n")
	if latencyMs >= 0 {
		fmt.Fprintf(&b, "Latency: %d ms\n", latencyMs)
	}

	b.WriteString("\n🧾 Detailed Filter Breakdown\n")
	b.WriteString("| Filter Name          | Match State       | Confidence Level   |\n")
	b.WriteString("|----------------------|-------------------|--------------------|\n")
	for _, f := range safety.Filters {
		b.WriteString(Row(f, verdict.Result(f.Key)))
		b.WriteString("\n")
	}
	return b.String()
}

// Row renders a single filter line of the breakdown table.
func Row(f safety.Filter, r safety.FilterResult) string {
	marker := warnMarker
	if r.Passed() {
		marker = passMarker
	}
	return fmt.Sprintf("| %-20s | %s %-14s | %-18s |", f.Name, marker, r.MatchState, r.ConfidenceLevel)
}

func Write(w io.Writer, verdict *safety.Verdict, latencyMs int64) error {
	_, err := io.WriteString(w, Format(verdict, latencyMs))
	return err
}
