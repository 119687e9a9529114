package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"bgmtrack/lib/collectionstore"
	"bgmtrack/lib/scrapers/bangumi/track"
	"bgmtrack/lib/serviceutil"
	"bgmtrack/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(historyCmd)
}

var collectionCmd = &cobra.Command{
	Use:   "collection <subject>",
	Short: "Prints your collection record for a subject and saves a snapshot.",
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
			fmt.Printf("%s (subject %s) is not in your collection\n", sc.Subject.Title, sc.Subject.Id)
			return
		}

		fmt.Printf("%s (subject %s)\n", sc.Subject.Title, sc.Subject.Id)
		fmt.Printf("status: %s\n", sc.CStatus)
		if sc.Rating > 0 {
			fmt.Printf("rating: %d\n", sc.Rating)
		}
		if len(sc.Tags) > 0 {
			fmt.Printf("tags: %s\n", strings.Join(sc.Tags, " "))
		}
		if sc.Comment != "" {
			fmt.Printf("comment: %s\n", sc.Comment)
		}
		fmt.Printf("watched: %d\n", sc.NWatchedEps)

		if len(sc.EpColls) > 0 {
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Ep", "Title", "Status"})
			for _, ec := range sc.EpColls {
				t.AppendRow(table.Row{ec.Episode.Label(), ec.Episode.Title, string(ec.CStatus)})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
		}

		store, closeStore := openStore(cfg)
		defer closeStore()
		err = store.Push(cmd.Context(), collectionstore.PushRequest{
			Time: timezone.Now(),
			User: client.Core.UserId(),
			Subjects: []collectionstore.SubjectSnapshot{{
				SubjectId:   sc.Subject.Id,
				Title:       sc.Subject.Title,
				Status:      sc.CStatus.String(),
				Rating:      sc.Rating,
				NWatchedEps: sc.NWatchedEps,
				Tags:        sc.Tags,
				Comment:     sc.Comment,
			}},
		})
		if err != nil {
			slog.WarnContext(cmd.Context(), "failed to record snapshot", "err", err)
			return
		}
		slog.Debug("snapshot recorded", "subject", sc.Subject.Id)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [subject]",
	Short: "Prints your recorded collection snapshots over time.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		client := createClient(cmd.Context(), cfg)
		defer endSession(cmd.Context(), client)

		store, closeStore := openStore(cfg)
		defer closeStore()
		series, err := store.Pull(cmd.Context(), client.Core.UserId())
		if err != nil {
			serviceutil.Fatal("failed to read snapshots", err)
		}

		if len(args) == 1 {
			id := resolveSubjectId(cmd.Context(), client, cfg, args[0])
			var filtered []collectionstore.SubjectSeries
			for _, s := range series {
				if s.SubjectId == id {
					filtered = append(filtered, s)
				}
			}
			series = filtered
		}

		if len(series) == 0 {
			fmt.Println("no snapshots recorded yet")
			return
		}

		for _, s := range series {
			fmt.Printf("%s (subject %s)\n", s.Title, s.SubjectId)
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Date", "Status", "Rating", "Watched", "Tags", "Comment"})
			for _, snapshot := range s.Snapshots {
				t.AppendRow(table.Row{
					snapshot.Time.Format(time.DateOnly),
					snapshot.Status,
					snapshot.Rating,
					snapshot.NWatchedEps,
					strings.Join(snapshot.Tags, " "),
					snapshot.Comment,
				})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
		}
	},
}
