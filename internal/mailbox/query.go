package mailbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/dedup"
)

// QueryOptions describes a mailbox search window.
type QueryOptions struct {
	// After restricts results to messages after this calendar day (after:YYYY/MM/DD).
	After time.Time
	// Now anchors Days; zero means time.Now().
	Now time.Time
	// Label optionally restricts results to one label.
	Label string
	// Days restricts results to the trailing window as a unix timestamp (after:<unix>).
	// Ignored when After is set.
	Days int
}

// BuildQuery renders opts in mailbox search syntax.
func BuildQuery(opts QueryOptions) string {
	var terms []string

	switch {
	case !opts.After.IsZero():
		terms = append(terms, "after:"+dedup.InHome(opts.After).Format("2006/01/02"))
	case opts.Days > 0:
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		terms = append(terms, fmt.Sprintf("after:%d", now.AddDate(0, 0, -opts.Days).Unix()))
	}

	if label := strings.TrimSpace(opts.Label); label != "" {
		if strings.ContainsAny(label, " \t") {
			label = `"` + label + `"`
		}
		terms = append(terms, "label:"+label)
	}

	return strings.Join(terms, " ")
}
