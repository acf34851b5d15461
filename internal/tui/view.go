package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/tutu529/qilin-check-bag/internal/review"
)

// metadataFields fixes the display order and labels of the free-form
// item metadata. Unknown keys are not rendered.
var metadataFields = []struct {
	key   string
	label string
}{
	{"mainCargoCode", "Manifest no."},
	{"subCargoCode", "Waybill no."},
	{"businessId", "Business no."},
	{"imgJudgment", "Review instruction"},
	{"preJudgment", "Customs hold"},
	{"createdTime", "Scanned at"},
	{"materialWeight", "Declared weight"},
	{"materialValue", "Declared value"},
	{"materialCount", "Declared count"},
	{"materialBaseName", "Main goods"},
}

// judgmentWords translates the numeric instruction codes carried on the
// wire into operator-readable text.
var judgmentWords = map[string]string{
	"1": "release",
	"2": "inspect",
	"3": "approved, awaiting release",
}

const maxValueWidth = 40

func renderView(snap review.Snapshot) string {
	var b strings.Builder

	header := fmt.Sprintf("qilin-check-bag │ %s │ conn: %s", snap.Phase, connLabel(snap.ConnStatus))
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	if snap.Phase == review.PhaseReviewing {
		b.WriteString(countdownStyle.Render(fmt.Sprintf(" auto-release in %ds ", snap.CountdownRemaining)))
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("Shipment"))
	b.WriteString("\n")
	b.WriteString(renderItem(snap.Item))

	b.WriteString("\n")
	b.WriteString(renderStats(snap))

	if snap.LastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("! " + snap.LastError))
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("r:release  f:flag for inspection  q:quit"))

	return b.String()
}

func renderItem(item *review.Item) string {
	if item == nil {
		return emptyStyle.Render("  (waiting for next item)")
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("  item %s", item.ID)))
	b.WriteString("\n")

	for _, f := range metadataFields {
		value, ok := item.Metadata[f.key]
		if !ok || value == "" {
			continue
		}
		if f.key == "imgJudgment" || f.key == "preJudgment" {
			if word, ok := judgmentWords[value]; ok {
				value = word
			}
		}
		if runewidth.StringWidth(value) > maxValueWidth {
			value = runewidth.Truncate(value, maxValueWidth-3, "...")
		}
		b.WriteString(fmt.Sprintf("  %-20s %s\n", labelStyle.Render(f.label), valueStyle.Render(value)))
	}

	b.WriteString(emptyStyle.Render(fmt.Sprintf("  image: %s payload", payloadSize(item.Image))))
	b.WriteString("\n")
	return b.String()
}

func renderStats(snap review.Snapshot) string {
	line := fmt.Sprintf("today: %d released │ %d flagged", snap.Stats.Released, snap.Stats.Flagged)
	if snap.Item != nil && snap.Item.TotalPending > 0 {
		line += fmt.Sprintf(" │ %d pending", snap.Item.TotalPending)
	}
	return statsStyle.Render(line)
}

func connLabel(status string) string {
	if status == "" {
		return "disconnected"
	}
	return status
}

func payloadSize(image string) string {
	n := len(image)
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
