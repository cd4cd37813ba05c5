package harvest

import (
	"fmt"
	"strings"
	"time"
)

const (
	reportHeader    = "--- Summary of Last Image Crawl ---"
	timestampLayout = "2006-01-02 15:04:05 -0700"
)

// DomainSummary is the outcome of one domain in a run.
type DomainSummary struct {
	Domain     string `json:"domain"`
	SourceType string `json:"source_type"`
	Skipped    bool   `json:"skipped,omitempty"`
	Found      int    `json:"found"`
	Discarded  int    `json:"discarded"`
	NewCount   int    `json:"new_count"`
	TotalCount int    `json:"total_count"`
	Downloaded int    `json:"downloaded"`
	Error      string `json:"error,omitempty"`
}

// Reported reports whether the domain gets a line in the run log.
func (d DomainSummary) Reported() bool {
	return !d.Skipped && d.Error == ""
}

// Summary is the outcome of a full run.
type Summary struct {
	RunID           string          `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Duration        time.Duration   `json:"-"`
	DurationSeconds float64         `json:"duration_seconds"`
	Domains         []DomainSummary `json:"domains"`
}

// NewImages is the number of images added to history across all domains.
func (s Summary) NewImages() int {
	total := 0
	for _, d := range s.Domains {
		total += d.NewCount
	}
	return total
}

// HasNewImages reports whether any domain gained images.
func (s Summary) HasNewImages() bool {
	return s.NewImages() > 0
}

// RunLog renders the run log file: header, one line per harvested domain and
// the duration line.
func RunLog(s Summary, loc *time.Location) string {
	lines := header(s, loc)
	for _, d := range s.Domains {
		if d.Reported() {
			lines = append(lines, domainLine(d))
		}
	}
	lines = append(lines, durationLine(s.Duration))
	return strings.Join(lines, "\n")
}

// Notification renders the message sent when new images were found. Only
// domains with new images are listed.
func Notification(s Summary, loc *time.Location) string {
	lines := header(s, loc)
	for _, d := range s.Domains {
		if d.Reported() && d.NewCount > 0 {
			lines = append(lines, domainLine(d))
		}
	}
	lines = append(lines, durationLine(s.Duration))
	return strings.Join(lines, "\n")
}

func header(s Summary, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	return []string{
		reportHeader,
		"Timestamp: " + s.FinishedAt.In(loc).Format(timestampLayout),
	}
}

func domainLine(d DomainSummary) string {
	return fmt.Sprintf("%s: %d New Images. Total: %d", d.Domain, d.NewCount, d.TotalCount)
}

func durationLine(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("Crawl duration: %d min %d seconds.", secs/60, secs%60)
}
