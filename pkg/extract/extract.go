// Package extract drives the full extraction: for every site on the
// account, discover the first day with data, then stream every reading
// from that day forward.
package extract

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/puddly/dte-insight-extractor/pkg/session"
	"github.com/puddly/dte-insight-extractor/pkg/usage"
)

// SiteData pairs a site with its complete reading history.
type SiteData struct {
	Site     session.Site    `json:"info"`
	Readings []usage.Reading `json:"readings"`
}

// Extractor runs the extraction over an authenticated session's sites,
// strictly sequentially. There is no checkpointing: a failure partway
// through any site aborts the whole run.
type Extractor struct {
	session *session.Session
	reader  *usage.Reader
	finder  *usage.Finder
	logger  zerolog.Logger
}

// New creates an extractor over the session's sites.
func New(sess *session.Session, reader *usage.Reader, finder *usage.Finder, logger zerolog.Logger) *Extractor {
	return &Extractor{
		session: sess,
		reader:  reader,
		finder:  finder,
		logger:  logger,
	}
}

// ExtractSite fetches the complete reading history for one site.
func (e *Extractor) ExtractSite(ctx context.Context, site session.Site) (SiteData, error) {
	start, err := e.finder.FindFirstDataDate(ctx, site.ID)
	if err != nil {
		return SiteData{}, fmt.Errorf("find first data date: %w", err)
	}

	readings, err := e.reader.ReadAll(ctx, site.ID, start)
	if err != nil {
		return SiteData{}, fmt.Errorf("read site data: %w", err)
	}

	return SiteData{Site: site, Readings: readings}, nil
}

// ExtractAll fetches the complete reading history for every site on the
// account, in profile order, materializing each site fully before moving
// to the next.
func (e *Extractor) ExtractAll(ctx context.Context) ([]SiteData, error) {
	profile := e.session.Profile()

	results := make([]SiteData, 0, len(profile.Sites))
	for _, site := range profile.Sites {
		e.logger.Info().Int64("site_id", site.ID).Msg("Extracting site")

		data, err := e.ExtractSite(ctx, site)
		if err != nil {
			return nil, fmt.Errorf("site %d: %w", site.ID, err)
		}

		e.logger.Info().
			Int64("site_id", site.ID).
			Int("readings", len(data.Readings)).
			Msg("Site extraction complete")

		results = append(results, data)
	}

	return results, nil
}
