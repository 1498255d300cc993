package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"TreasuryCycler/internal/model"
	"TreasuryCycler/internal/recorder"
)

// FormatCycleReport formats one cycle for Telegram.
func FormatCycleReport(rep *model.CycleReport) string {
	var b strings.Builder

	if rep.Succeeded() {
		b.WriteString(fmt.Sprintf("✅ <b>Cycle complete</b> | %s\n\n", rep.StartedAt.Format("2006-01-02 15:04")))
	} else {
		b.WriteString(fmt.Sprintf("❌ <b>Cycle failed at %s</b> | %s\n\n", rep.FailedStage, rep.StartedAt.Format("2006-01-02 15:04")))
	}

	b.WriteString(fmt.Sprintf("Slot: %d\n", rep.Snapshot.CurrentPosition))
	b.WriteString(fmt.Sprintf("SOL: %s | USDC: %s\n", rep.Snapshot.NativeBalance.StringFixed(4), rep.Snapshot.SettlementBalance.StringFixed(2)))
	b.WriteString(fmt.Sprintf("Converted: %s USDC\n", rep.Converted.StringFixed(2)))
	b.WriteString(fmt.Sprintf("Total: %s (carried in %s)\n", rep.Total.StringFixed(2), rep.CarriedIn.StringFixed(2)))
	if rep.RouteSignature != "" {
		b.WriteString(fmt.Sprintf("Routed: %s USDC\n  <code>%s</code>\n", rep.Routed.StringFixed(2), rep.RouteSignature))
	} else {
		b.WriteString(fmt.Sprintf("Carried: %s USDC\n", rep.CarriedOut.StringFixed(2)))
	}

	if rep.Signal != "" {
		b.WriteString(fmt.Sprintf("\n📈 Signal: <b>%s</b> (%d closes)\n", rep.Signal, rep.Closes))
	}
	if o := rep.Order; o != nil {
		tag := ""
		if o.Simulated {
			tag = " [paper]"
		}
		b.WriteString(fmt.Sprintf("Order%s: %s %s @ %.2f (%s)\n", tag, rep.OrderSide, o.Status, o.FillPrice, o.OrderID))
	}

	if rep.Err != "" {
		b.WriteString(fmt.Sprintf("\n⚠️ %s\n", html.EscapeString(rep.Err)))
	}
	return b.String()
}

// FormatStatus formats the persisted state and the last cycle for /status.
func FormatStatus(st model.CycleState, last *model.CycleReport, next time.Time) string {
	var b strings.Builder
	b.WriteString("📦 <b>Status</b>\n\n")
	b.WriteString(fmt.Sprintf("Last slot: %d\n", st.LastProcessedPosition))
	b.WriteString(fmt.Sprintf("Carried: %s USDC\n", st.CarriedSettlementBalance.StringFixed(2)))
	if last != nil {
		outcome := "ok"
		if !last.Succeeded() {
			outcome = "failed at " + last.FailedStage
		}
		b.WriteString(fmt.Sprintf("Last cycle: %s (%s, %s)\n", last.StartedAt.Format("2006-01-02 15:04"), outcome, last.Signal))
	} else {
		b.WriteString("Last cycle: none yet\n")
	}
	if !next.IsZero() {
		b.WriteString(fmt.Sprintf("Next run: %s\n", next.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatHistory formats recent cycles, newest first.
func FormatHistory(recs []recorder.CycleRecord) string {
	if len(recs) == 0 {
		return "No cycles recorded."
	}
	var b strings.Builder
	b.WriteString("🗂 <b>Recent cycles</b>\n\n")
	for _, r := range recs {
		line := fmt.Sprintf("%s  %-5s total %s", r.StartedAt.Format("01-02 15:04"), r.Signal, r.Total.StringFixed(2))
		if r.Routed.IsPositive() {
			line += fmt.Sprintf(" routed %s", r.Routed.StringFixed(2))
		}
		if r.OrderID != "" {
			line += fmt.Sprintf(" %s", r.OrderSide)
		}
		if r.FailedStage != "" {
			line += fmt.Sprintf(" ❌ %s", r.FailedStage)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
