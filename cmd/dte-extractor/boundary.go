package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/puddly/dte-insight-extractor/pkg/logging"
	"github.com/puddly/dte-insight-extractor/pkg/usage"
)

var boundaryCmd = &cobra.Command{
	Use:   "boundary [site-id]",
	Short: "Find the first day a site has any readings",
	Long: `Binary-searches the site's history for the earliest calendar day with
at least one reading. Useful for checking how far back an account's data
goes without downloading all of it.`,
	Args: cobra.ExactArgs(1),
	RunE: runBoundary,
}

func init() {
	rootCmd.AddCommand(boundaryCmd)
}

func runBoundary(cmd *cobra.Command, args []string) error {
	siteID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid site id %q: %w", args[0], err)
	}

	ctx := cmd.Context()

	sess, cfg, err := login(ctx)
	if err != nil {
		return err
	}

	reader := usage.NewReader(sess, cfg.BatchCount, logging.NewLogger("reader"))
	finder := usage.NewFinder(reader, logging.NewLogger("boundary-finder"))

	boundary, err := finder.FindFirstDataDate(ctx, siteID)
	if err != nil {
		return fmt.Errorf("finding boundary: %w", err)
	}

	fmt.Printf("Site %d has data starting %s\n", siteID, boundary.Format(time.RFC3339))
	return nil
}
