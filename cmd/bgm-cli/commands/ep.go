package commands

import (
	"fmt"
	"log/slog"

	"bgmtrack/lib/scrapers/bangumi/track"
	"bgmtrack/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(epCmd)
}

var epCmd = &cobra.Command{
	Use:   "ep <subject> <episode> <watched|queue|drop|watched-up-to|remove>",
	Short: "Sets or clears the status of one episode, by id or sort label like EP15.",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		client := createClient(cmd.Context(), cfg)
		defer endSession(cmd.Context(), client)

		id := resolveSubjectId(cmd.Context(), client, cfg, args[0])
		sc, err := client.SubjectCollection(cmd.Context(), id)
		if err != nil {
			serviceutil.Fatal("failed to fetch collection", err)
		}

		epRef, action := args[1], args[2]

		var ok bool
		switch action {
		case "watched-up-to", "watched_up_to":
			ok, err = sc.WatchedUpTo(cmd.Context(), epRef)
		case "remove":
			ec := findEpisode(sc, epRef)
			ok, err = ec.Remove(cmd.Context())
		case "watched", "queue", "drop":
			ec := findEpisode(sc, epRef)
			ec.CStatus = track.EpStatus(action)
			ok, err = ec.Sync(cmd.Context())
		default:
			serviceutil.Fatal("unknown episode action", fmt.Errorf("%q is not one of watched, queue, drop, watched-up-to, remove", action))
		}
		if err != nil {
			serviceutil.Fatal("failed to submit the episode status", err)
		}
		if !ok {
			serviceutil.Fatal("the service did not accept the episode status", fmt.Errorf("the session may have expired"))
		}
		slog.Info("episode status saved", "subject", id, "episode", epRef, "action", action)
	},
}

func findEpisode(sc *track.SubjectCollection, epRef string) *track.EpisodeCollection {
	ec, err := sc.FindEpisodeCollection(epRef)
	if err != nil {
		serviceutil.Fatal("failed to resolve episode", err)
	}
	if ec == nil {
		serviceutil.Fatal("failed to resolve episode", fmt.Errorf("%q is not in this subject's episode list", epRef))
	}
	return ec
}
