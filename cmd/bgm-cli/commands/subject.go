package commands

import (
	"fmt"
	"os"

	"bgmtrack/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(subjectCmd)
}

var subjectCmd = &cobra.Command{
	Use:   "subject <id|title>",
	Short: "Prints a subject and its episode list.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		client := createClient(cmd.Context(), cfg)
		defer endSession(cmd.Context(), client)

		id := resolveSubjectId(cmd.Context(), client, cfg, args[0])
		sub, err := client.Subject(cmd.Context(), id)
		if err != nil {
			serviceutil.Fatal("failed to fetch subject", err)
		}

		if sub.ChTitle != "" {
			fmt.Printf("%s / %s (subject %s)\n", sub.Title, sub.ChTitle, sub.Id)
		} else {
			fmt.Printf("%s (subject %s)\n", sub.Title, sub.Id)
		}
		if sub.NEps > 0 {
			fmt.Printf("%d episodes\n", sub.NEps)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Ep", "Title", "Ch Title", "Air"})
		for _, ep := range sub.Eps {
			t.AppendRow(table.Row{ep.Label(), ep.Title, ep.ChTitle, ep.AirState})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
