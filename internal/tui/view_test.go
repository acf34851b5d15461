package tui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutu529/qilin-check-bag/internal/review"
)

func TestRenderViewReviewing(t *testing.T) {
	out := renderView(review.Snapshot{
		Phase: review.PhaseReviewing,
		Item: &review.Item{
			ID:            "SG-100",
			CorrelationID: "BIZ-100",
			Image:         "iVBORw0KGgo=",
			Metadata: map[string]string{
				"mainCargoCode":    "MC-44",
				"businessId":       "BIZ-100",
				"preJudgment":      "2",
				"materialBaseName": "ceramics",
			},
			TotalPending: 7,
		},
		CountdownRemaining: 3,
		Stats:              review.Stats{Released: 9, Flagged: 2},
		ConnStatus:         "connected",
	})

	require.Contains(t, out, "auto-release in 3s")
	require.Contains(t, out, "item SG-100")
	require.Contains(t, out, "MC-44")
	require.Contains(t, out, "inspect") // preJudgment code 2 translated
	require.Contains(t, out, "ceramics")
	require.Contains(t, out, "9 released")
	require.Contains(t, out, "2 flagged")
	require.Contains(t, out, "7 pending")
	require.Contains(t, out, "conn: connected")
}

func TestRenderViewIdle(t *testing.T) {
	out := renderView(review.Snapshot{
		Phase:     review.PhaseIdle,
		LastError: "fetch next item (network): connection refused",
	})

	require.Contains(t, out, "waiting for next item")
	require.Contains(t, out, "connection refused")
	require.Contains(t, out, "conn: disconnected")
	require.NotContains(t, out, "auto-release")
}
