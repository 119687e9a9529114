package commands

import (
	"fmt"
	"log/slog"

	"bgmtrack/lib/scrapers/bangumi/track"
	"bgmtrack/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(removeCmd)
}

var removeCmd = &cobra.Command{
	Use:   "remove <subject>",
	Short: "Removes a subject from your collection.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		client := createClient(cmd.Context(), cfg)
		defer endSession(cmd.Context(), client)

		id := resolveSubjectId(cmd.Context(), client, cfg, args[0])
		sc, err := client.SubjectCollection(cmd.Context(), id)
		if err != nil {
			serviceutil.Fatal("failed to fetch collection", err)
		}
		if sc.CStatus == track.StatusUnset {
			slog.Info("nothing to remove", "subject", id)
			return
		}

		ok, err := sc.Remove(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to remove the collection", err)
		}
		if !ok {
			serviceutil.Fatal("the service did not confirm the removal", fmt.Errorf("the session may have expired"))
		}
		slog.Info("collection removed", "subject", id)
	},
}
