package tui

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/andy/timebill/internal/render"
)

// formatClock formats elapsed seconds as "HH:MM:SS"
func formatClock(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// formatHours formats seconds as "Xh Ym"
func formatHours(secs int64) string {
	h := secs / 3600
	m := secs / 60 % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

func formatMoney(amount decimal.Decimal) string {
	return render.Money(amount)
}

// truncateStr truncates a string to the specified length with ellipsis
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
