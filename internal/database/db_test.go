package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementsCoverEveryTable(t *testing.T) {
	stmts := Statements()
	require.Len(t, stmts, 10)
	for _, table := range []string{
		"customers", "rooms", "lockers", "lane_sessions", "visits",
		"checkin_blocks", "waitlist", "payment_intents", "checkout_requests", "audit_log",
	} {
		found := false
		for _, s := range stmts {
			if strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				found = true
				break
			}
		}
		assert.True(t, found, "missing table %s", table)
	}
}
