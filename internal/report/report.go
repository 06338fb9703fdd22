// Package report renders a user's stats for people: stat-card lines and a
// spreadsheet export.
package report

import (
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/geograpy/geograpy/internal/tracker"
)

var printer = message.NewPrinter(language.English)

// FormatXP renders n with thousands separators: "1,234 XP". A nil n
// renders as 0.
func FormatXP(n *big.Int) string {
	if n == nil {
		n = new(big.Int)
	}
	if n.IsInt64() {
		return printer.Sprintf("%d XP", n.Int64())
	}
	return groupThousands(n.String()) + " XP"
}

// groupThousands inserts commas into a base-10 integer. The printer only
// groups machine integers.
func groupThousands(digits string) string {
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}

	var b strings.Builder
	b.WriteString(sign)
	head := len(digits) % 3
	if head == 0 {
		head = 3
	}
	b.WriteString(digits[:head])
	for i := head; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Line is one labelled stat card.
type Line struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Summary returns the stat cards of the stats page, in display order.
func Summary(st tracker.Stats) []Line {
	lines := []Line{
		{Label: "Nivel", Value: fmt.Sprintf("%d", st.Progress.Level)},
		{Label: "Modo", Value: st.Difficulty.Name},
		{Label: "XP Total", Value: FormatXP(st.Progress.TotalXP)},
		{Label: "Exámenes Completados", Value: fmt.Sprintf("%d", st.ExamsCompleted)},
		{Label: "Precisión", Value: fmt.Sprintf("%.1f%% (Último: %.1f%%)", st.AverageAccuracy, st.LastAccuracy)},
		{Label: "XP para siguiente nivel", Value: FormatXP(st.Progress.XPToNext())},
	}
	if st.NextUnlock > 0 {
		lines = append(lines, Line{Label: "Próxima recompensa", Value: fmt.Sprintf("Nivel %d", st.NextUnlock)})
	}
	return lines
}
