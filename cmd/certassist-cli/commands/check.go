package commands

import (
	"fmt"
	"os"

	"certassist-backend/lib/scrapers/tnedistrict"
	"certassist-backend/services/status"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var checkShowRaw *bool

func init() {
	checkShowRaw = checkCmd.Flags().Bool("raw", false, "Print the captured page text as well.")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <application_no>",
	Short: "Resolves the status of one application number against the portal.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()

		navigator := tnedistrict.NewNavigator(cfg.Scraper)
		svc := status.NewService(navigator, 1)

		result, err := svc.ResolveStatus(cmd.Context(), args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Field", "Value"})
		t.AppendRow(table.Row{"outcome", string(result.Outcome)})
		for _, key := range []string{
			tnedistrict.FieldAppNo,
			tnedistrict.FieldApplicantName,
			tnedistrict.FieldFatherName,
			tnedistrict.FieldGender,
			tnedistrict.FieldService,
			tnedistrict.FieldRequestDate,
			tnedistrict.FieldStatusText,
			tnedistrict.FieldRemarks,
		} {
			if v, ok := result.Fields[key]; ok {
				t.AppendRow(table.Row{key, v})
			}
		}
		if result.ArtifactPath != "" {
			t.AppendRow(table.Row{"screenshot", result.ArtifactPath})
		}
		t.Render()

		if *checkShowRaw {
			fmt.Println()
			fmt.Println(result.RawText)
		}
	},
}
