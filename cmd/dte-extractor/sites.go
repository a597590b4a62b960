package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the metered sites on the account",
	RunE:  runSites,
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}

func runSites(cmd *cobra.Command, args []string) error {
	sess, _, err := login(cmd.Context())
	if err != nil {
		return err
	}

	profile := sess.Profile()
	fmt.Printf("%s %s (customer %d), %d site(s):\n",
		profile.FirstName, profile.LastName, profile.CustomerID, len(profile.Sites))
	for _, site := range profile.Sites {
		fmt.Printf("  %d  %s\n", site.ID, site.Raw)
	}

	return nil
}
