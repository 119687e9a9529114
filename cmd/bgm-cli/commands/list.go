package commands

import (
	"os"

	"bgmtrack/lib/scrapers/bangumi/track"
	"bgmtrack/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var listUser *string

func init() {
	listUser = listCmd.Flags().String("user", "", "A user id to list instead of yourself.")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list <anime|book|game|real> <wish|collect|do|on_hold|dropped> [--user <id>]",
	Short: "Prints one status bucket of a collection list.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()

		status, err := track.ParseCollectionStatus(args[1])
		if err != nil {
			serviceutil.Fatal("invalid collection status", err)
		}

		client := createClient(cmd.Context(), cfg)
		defer endSession(cmd.Context(), client)

		colls, err := client.DummyCollections(cmd.Context(), track.SubjectType(args[0]), status, *listUser)
		if err != nil {
			serviceutil.Fatal("failed to fetch the collection list", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Id", "Title", "Ch Title"})
		for _, coll := range colls {
			t.AppendRow(table.Row{coll.SubjectId, coll.Title, coll.ChTitle})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
