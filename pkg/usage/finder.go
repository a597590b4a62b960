package usage

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// searchEpoch is the lower bound of the boundary search. The upstream has
// no data before it.
var searchEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Finder discovers the earliest calendar day a site has any data by
// binary-searching [searchEpoch, now).
//
// The search assumes the upstream dataset is monotonic: once data exists
// for a day, it exists for every later day up to the last live date. If
// the upstream has retroactive gaps the discovered boundary may be late;
// the search does not probe for gaps.
type Finder struct {
	reader *Reader
	now    func() time.Time
	logger zerolog.Logger
}

// NewFinder creates a boundary finder probing through the given reader.
func NewFinder(reader *Reader, logger zerolog.Logger) *Finder {
	return &Finder{
		reader: reader,
		now:    time.Now,
		logger: logger,
	}
}

// SetClock sets a custom clock (for testing).
func (f *Finder) SetClock(now func() time.Time) {
	f.now = now
}

// FindFirstDataDate returns the earliest UTC-midnight day for which the
// site has at least one reading. If the site has no data at all the
// search still terminates, converging near now; the caller's first fetch
// from the result will come back empty.
func (f *Finder) FindFirstDataDate(ctx context.Context, siteID int64) (time.Time, error) {
	f.logger.Info().Int64("site_id", siteID).Msg("Binary searching for first reading date")

	left := searchEpoch
	right := f.now().UTC()

	for right.Sub(left) > 24*time.Hour {
		// Round the midpoint's elapsed seconds up so an odd-second
		// interval still converges, then floor to UTC midnight.
		half := math.Ceil(right.Sub(left).Seconds() / 2)
		midpoint := left.Add(time.Duration(half) * time.Second)
		midpoint = time.Date(midpoint.Year(), midpoint.Month(), midpoint.Day(), 0, 0, 0, 0, time.UTC)

		// Flooring can land back on left when the interval is barely
		// over a day; bump a day to keep making progress.
		if !midpoint.After(left) {
			midpoint = left.Add(24 * time.Hour)
		}

		batch, err := f.reader.FetchBatch(ctx, siteID, midpoint)
		if err != nil {
			return time.Time{}, err
		}

		f.logger.Debug().
			Int64("site_id", siteID).
			Time("midpoint", midpoint).
			Time("left", left).
			Time("right", right).
			Int("readings", len(batch)).
			Msg("Boundary probe")

		if len(batch) == 0 {
			left = midpoint
		} else {
			right = midpoint
		}
	}

	f.logger.Info().
		Int64("site_id", siteID).
		Time("first_reading_date", right).
		Msg("Found first reading date")

	return right, nil
}
