package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	started := OccupancyEvent{
		Kind: VisitStarted, VisitID: "v1", CustomerName: "Jane Sample", LaneID: "L1",
		ResourceType: "ROOM", ResourceNumber: "101", RentalType: "STANDARD",
		EndsAt: "2026-10-17T02:00:00Z", OccurredAt: "2026-10-16T20:00:00Z",
	}
	assert.Equal(t,
		"[2026-10-16T20:00:00Z] Visit started | visit_id=v1 | customer=\"Jane Sample\" | lane=L1 | ROOM 101 | STANDARD | until=2026-10-17T02:00:00Z\n",
		FormatLine(started))

	ended := OccupancyEvent{
		Kind: VisitEnded, VisitID: "v1", CustomerName: "Jane Sample", ResourceType: "LOCKER",
		ResourceNumber: "L12", LateMinutes: 95, LateFee: "35", BanApplied: true, OccurredAt: "t",
	}
	line := FormatLine(ended)
	assert.True(t, strings.HasPrefix(line, "[t] Visit ended | visit_id=v1"))
	assert.Contains(t, line, "late_minutes=95 | late_fee=35 | ban=true")

	ended.LateFee = ""
	assert.Contains(t, FormatLine(ended), "late_fee=0")

	renewed := OccupancyEvent{Kind: VisitRenewed, VisitID: "v2", OccurredAt: "t"}
	assert.Contains(t, FormatLine(renewed), "Visit renewed | visit_id=v2")
}

func TestHandleMessageAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	for _, kind := range []string{VisitStarted, VisitEnded} {
		body, err := json.Marshal(OccupancyEvent{Kind: kind, VisitID: "v1", OccurredAt: "t"})
		require.NoError(t, err)
		require.NoError(t, handleMessage(dir, body))
	}
	data, err := os.ReadFile(filepath.Join(dir, occupancyLogFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Visit started")
	assert.Contains(t, lines[1], "Visit ended")
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, handleMessage(dir, []byte("{")))
	assert.Error(t, handleMessage(dir, []byte(`{"kind":"visit.started"}`)))
}
