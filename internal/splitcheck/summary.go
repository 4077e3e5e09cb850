package splitcheck

import (
	"fmt"
	"strings"
)

const (
	summaryHeader    = "\U0001F9FE *Division de Cuenta*"
	summarySeparator = "━━━━━━━━━━━━"

	// Item names in the detailed layout are truncated to this width so
	// prices line up in a monospace paste.
	itemNameWidth = 14
)

// padAmount right-aligns an amount in an 8-wide column.
func padAmount(amount float64) string {
	return fmt.Sprintf("%8.2f", amount)
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) > itemNameWidth {
		runes = runes[:itemNameWidth]
	}
	return fmt.Sprintf("%-*s", itemNameWidth, string(runes))
}

// FormatSummary renders the allocation state as shareable plain text,
// ready to paste into a messaging app. The compact form is one line
// per person; the detailed form lists each person's items in a
// fixed-width layout with a subtotal/tip/total footer. Both are pure
// functions of the engine state and tip percentage. The exact spacing
// is a visible contract, not incidental.
func FormatSummary(e *Engine, tipPercentage float64, detailed bool) string {
	tip := clampTip(tipPercentage)
	frac := tip / 100
	totals, _ := e.ComputeTotals(tip)

	var b strings.Builder
	b.WriteString(summaryHeader + "\n")
	b.WriteString(summarySeparator + "\n\n")

	var grandSubtotal, grandTotal float64
	for _, person := range e.people {
		t := totals[person.ID]
		grandSubtotal += t.Subtotal
		grandTotal += t.Total

		if detailed {
			fmt.Fprintf(&b, "\U0001F464 *%s*\n", person.Name)
			for _, row := range e.rows {
				if row.AssignedTo == person.ID && !row.Divided {
					fmt.Fprintf(&b, "   %s $%s\n", truncateName(row.Name), padAmount(row.Price))
				}
			}
			fmt.Fprintf(&b, "   Consumo:       $%s\n", padAmount(t.Subtotal))
			if frac > 0 {
				label := fmt.Sprintf("Propina (%.0f%%)", frac*100)
				fmt.Fprintf(&b, "   %-13s: $%s\n", label, padAmount(t.Tip))
			}
			fmt.Fprintf(&b, "   *Total:        $%s*\n\n", padAmount(t.Total))
		} else {
			if frac > 0 {
				fmt.Fprintf(&b, "\U0001F464 %s: $%.2f + $%.2f = $%.2f\n", person.Name, t.Subtotal, t.Tip, t.Total)
			} else {
				fmt.Fprintf(&b, "\U0001F464 %s: $%.2f\n", person.Name, t.Subtotal)
			}
		}
	}
	if !detailed {
		b.WriteString("\n")
	}

	b.WriteString(summarySeparator + "\n")
	if frac > 0 {
		fmt.Fprintf(&b, "\U0001F4B0 *Total:   $%s*\n", padAmount(grandSubtotal))
		fmt.Fprintf(&b, "\U0001F4B0 *Con %.0f%% de propina: $%s*", frac*100, padAmount(grandTotal))
	} else {
		fmt.Fprintf(&b, "\U0001F4B0 *Total:   $%s*", padAmount(grandTotal))
	}

	return b.String()
}
