package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"bgmtrack/lib/scrapers/bangumi/track"
	"bgmtrack/lib/serviceutil"

	"github.com/spf13/cobra"
)

var collectStatus *string
var collectRating *int
var collectTags *string
var collectComment *string

func init() {
	collectStatus = collectCmd.Flags().String("status", "", "wish, collect, do, on_hold or dropped.")
	collectRating = collectCmd.Flags().Int("rating", 0, "A rating from 1 to 10, 0 clears it.")
	collectTags = collectCmd.Flags().String("tags", "", "Space separated tags.")
	collectComment = collectCmd.Flags().String("comment", "", "A short comment.")
	rootCmd.AddCommand(collectCmd)
}

var collectCmd = &cobra.Command{
	Use:   "collect <subject> --status <status> [--rating <n>] [--tags <tags>] [--comment <text>]",
	Short: "Creates or updates your collection record for a subject.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		status, err := track.ParseCollectionStatus(*collectStatus)
		if err != nil {
			serviceutil.Fatal("invalid collection status", err)
		}

		cfg := readConfig()
		client := createClient(cmd.Context(), cfg)
		defer endSession(cmd.Context(), client)

		id := resolveSubjectId(cmd.Context(), client, cfg, args[0])
		sc, err := client.SubjectCollection(cmd.Context(), id)
		if err != nil {
			serviceutil.Fatal("failed to fetch collection", err)
		}

		sc.CStatus = status
		if cmd.Flags().Changed("rating") {
			sc.Rating = *collectRating
		}
		if cmd.Flags().Changed("tags") {
			sc.Tags = strings.Fields(*collectTags)
		}
		if cmd.Flags().Changed("comment") {
			sc.Comment = *collectComment
		}

		ok, err := sc.Sync(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to submit the collection", err)
		}
		if !ok {
			serviceutil.Fatal("the service did not accept the collection", fmt.Errorf("the session may have expired"))
		}
		slog.Info("collection saved", "subject", sc.Subject.Id, "status", *collectStatus)
	},
}
