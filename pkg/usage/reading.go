package usage

import (
	"encoding/json"
	"time"
)

// Reading is one usage measurement: a UTC instant and the metered value in
// milli-units (the upstream's float usage scaled by 1000, keeping three
// decimal digits as an integer).
type Reading struct {
	Timestamp time.Time
	Value     int64
}

// MarshalJSON emits the [timestamp, value] pair format used by the
// extraction output.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.Timestamp.Format(time.RFC3339), r.Value})
}

// row is the upstream wire format for one reading.
type row struct {
	D int64   `json:"d"`
	U float64 `json:"u"`
}

// reading converts a wire row: epoch seconds to a UTC instant, usage to
// milli-units. Truncation matches the upstream rounding.
func (w row) reading() Reading {
	return Reading{
		Timestamp: time.Unix(w.D, 0).UTC(),
		Value:     int64(1000 * w.U),
	}
}
