package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/puddly/dte-insight-extractor/pkg/client"
	"github.com/puddly/dte-insight-extractor/pkg/session"
)

// DefaultBatchCount is the upstream's batch size: one reading per minute
// for a day.
const DefaultBatchCount = 1440

// Reader fetches batches of usage readings for the session's customer.
type Reader struct {
	session *session.Session
	count   int
	logger  zerolog.Logger
}

// NewReader creates a reader bound to an authenticated session. A count
// of zero or less uses DefaultBatchCount.
func NewReader(sess *session.Session, count int, logger zerolog.Logger) *Reader {
	if count <= 0 {
		count = DefaultBatchCount
	}
	return &Reader{
		session: sess,
		count:   count,
		logger:  logger,
	}
}

// FetchBatch fetches one batch of readings for a site starting at the
// given instant, in server order. A 404 from the upstream means "nothing
// in range" and yields an empty batch, not an error.
func (r *Reader) FetchBatch(ctx context.Context, siteID int64, start time.Time) ([]Reading, error) {
	query := url.Values{
		"deviceType": {"2"},
		"reportType": {"2"},
		"startTime":  {strconv.FormatInt(start.Unix(), 10)},
		"count":      {strconv.Itoa(r.count)},
	}

	path := fmt.Sprintf("/usage/%d/%d", r.session.CustomerID(), siteID)

	resp, err := r.session.Client().Get(ctx, path, query, true)
	if err != nil {
		if client.IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rows []row
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return nil, fmt.Errorf("decode usage response: %w", err)
	}

	readings := make([]Reading, len(rows))
	for i, w := range rows {
		readings[i] = w.reading()
	}

	r.logger.Debug().
		Int64("site_id", siteID).
		Time("start", start).
		Int("readings", len(readings)).
		Msg("Fetched usage batch")

	return readings, nil
}

// Stream is a forward-only, non-restartable iterator over a site's
// readings. It carries its own cursor, advancing one second past the last
// reading of each batch, and terminates on the first empty batch.
type Stream struct {
	reader *Reader
	siteID int64
	cursor time.Time
	batch  []Reading
	index  int
	done   bool
	err    error
}

// Read returns a stream of all readings for a site from the start instant
// onward.
func (r *Reader) Read(siteID int64, start time.Time) *Stream {
	return &Stream{
		reader: r,
		siteID: siteID,
		cursor: start,
	}
}

// Next advances the stream to the next reading. It returns false when the
// stream is exhausted or failed; check Err afterwards.
func (s *Stream) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}

	if s.index >= len(s.batch) {
		if s.done {
			return false
		}

		batch, err := s.reader.FetchBatch(ctx, s.siteID, s.cursor)
		if err != nil {
			s.err = err
			return false
		}
		if len(batch) == 0 {
			s.done = true
			return false
		}

		s.batch = batch
		s.index = 0
		s.cursor = batch[len(batch)-1].Timestamp.Add(time.Second)
	}

	s.index++
	return true
}

// Reading returns the reading the stream is positioned on. Only valid
// after Next has returned true.
func (s *Stream) Reading() Reading {
	return s.batch[s.index-1]
}

// Err returns the error that stopped the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// ReadAll materializes every reading for a site from the start instant
// onward, in order.
func (r *Reader) ReadAll(ctx context.Context, siteID int64, start time.Time) ([]Reading, error) {
	var readings []Reading

	stream := r.Read(siteID, start)
	for stream.Next(ctx) {
		readings = append(readings, stream.Reading())
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	r.logger.Info().
		Int64("site_id", siteID).
		Time("start", start).
		Int("readings", len(readings)).
		Msg("Loaded readings for site")

	return readings, nil
}
