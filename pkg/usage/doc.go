// Package usage fetches usage readings from the DTE Insight API.
//
// The upstream exposes no bulk export and no explicit pagination or range
// signals: an out-of-range request simply returns 404 or an empty array.
// This package infers everything from the shape of responses:
//
//   - Reader fetches fixed-size batches from a start instant and exposes a
//     forward-only Stream whose cursor always advances one second past the
//     last returned reading, so no reading is fetched twice and an exact
//     batch-boundary timestamp cannot stall the loop.
//   - Finder binary-searches [2000-01-01, now) for the earliest calendar
//     day a site has any data, probing one batch per midpoint.
//
// Example usage:
//
//	reader := usage.NewReader(sess, 0, logger)
//	finder := usage.NewFinder(reader, logger)
//	start, err := finder.FindFirstDataDate(ctx, siteID)
//	readings, err := reader.ReadAll(ctx, siteID, start)
package usage
