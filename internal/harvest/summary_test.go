package harvest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunLogAndNotification(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("ICT", 7*3600)
	s := Summary{
		FinishedAt: time.Date(2026, 5, 1, 1, 2, 3, 0, time.UTC),
		Duration:   125*time.Second + 400*time.Millisecond,
		Domains: []DomainSummary{
			{Domain: "one.example", NewCount: 3, TotalCount: 40},
			{Domain: "two.example", NewCount: 0, TotalCount: 12},
			{Domain: "skip.example", Skipped: true},
			{Domain: "broken.example", Error: "disk full"},
		},
	}

	assert.Equal(t, `--- Summary of Last Image Crawl ---
Timestamp: 2026-05-01 08:02:03 +0700
one.example: 3 New Images. Total: 40
two.example: 0 New Images. Total: 12
Crawl duration: 2 min 5 seconds.`, RunLog(s, loc))

	assert.Equal(t, `--- Summary of Last Image Crawl ---
Timestamp: 2026-05-01 08:02:03 +0700
one.example: 3 New Images. Total: 40
Crawl duration: 2 min 5 seconds.`, Notification(s, loc))

	assert.Equal(t, 3, s.NewImages())
	assert.True(t, s.HasNewImages())
}
