package commands

import (
	"fmt"
	"log/slog"
	"strconv"

	"bgmtrack/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchedCmd)
}

var watchedCmd = &cobra.Command{
	Use:   "watched <subject> <n>",
	Short: "Overrides the watched episode counter for a subject.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			serviceutil.Fatal("the watched count must be a number", err)
		}

		cfg := readConfig()
		client := createClient(cmd.Context(), cfg)
		defer endSession(cmd.Context(), client)

		id := resolveSubjectId(cmd.Context(), client, cfg, args[0])
		sc, err := client.SubjectCollection(cmd.Context(), id)
		if err != nil {
			serviceutil.Fatal("failed to fetch collection", err)
		}

		sc.NWatchedEps = n
		ok, err := sc.SyncWatchedCount(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to submit the watched count", err)
		}
		if !ok {
			serviceutil.Fatal("the service did not accept the watched count", fmt.Errorf("the session may have expired"))
		}
		slog.Info("watched count saved", "subject", id, "watched", n)
	},
}
