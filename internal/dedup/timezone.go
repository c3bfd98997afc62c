package dedup

import (
	"sync"
	"time"
)

// HomeZone is the civil timezone every transaction date is projected into.
const HomeZone = "America/Panama"

var (
	homeOnce sync.Once
	home     *time.Location
)

// Location returns the home timezone. Panama has no DST, so a fixed UTC-5 zone
// is used when the tz database is unavailable.
func Location() *time.Location {
	homeOnce.Do(func() {
		loc, err := time.LoadLocation(HomeZone)
		if err != nil {
			loc = time.FixedZone("EST", -5*60*60)
		}
		home = loc
	})
	return home
}

// InHome projects t into the home timezone.
func InHome(t time.Time) time.Time {
	return t.In(Location())
}

// CivilDate returns the calendar date of t in the home timezone.
func CivilDate(t time.Time) string {
	return InHome(t).Format("2006-01-02")
}
