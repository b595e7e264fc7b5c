package commands

import (
	"fmt"
	"os"

	"certassist-backend/services/jobs"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	claimOperator *string
	completeFile  *string
)

func init() {
	claimOperator = claimCmd.Flags().String("operator", "", "Operator id taking the job.")
	claimCmd.MarkFlagRequired("operator")
	completeFile = completeCmd.Flags().String("file", "", "Path of the downloaded certificate.")
	completeCmd.MarkFlagRequired("file")

	jobsCmd.AddCommand(listCmd)
	jobsCmd.AddCommand(claimCmd)
	jobsCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(jobsCmd)
}

func openJobs() jobs.Service {
	cfg := readConfig()
	database, err := cfg.Database.Open()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	svc, err := jobs.NewService(database)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	return svc
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspects and advances certificate fulfillment jobs.",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints all jobs that still need operator work.",
	Run: func(cmd *cobra.Command, args []string) {
		svc := openJobs()

		open, err := svc.ListOpen(cmd.Context())
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Job", "Application", "Applicant", "State", "Operator", "Created"})
		for _, job := range open {
			t.AppendRow(table.Row{
				job.ID,
				job.ApplicationNo,
				job.ApplicantName,
				string(job.State),
				job.OperatorID,
				job.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		t.Render()
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim <job_id> --operator <id>",
	Short: "Takes a pending job for an operator.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := openJobs()

		job, err := svc.Claim(cmd.Context(), args[0], *claimOperator)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Printf("claimed %s for %s\n", job.ID, job.OperatorID)
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <job_id> --file <path>",
	Short: "Marks a claimed job done, recording the certificate file.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := openJobs()

		job, err := svc.Complete(cmd.Context(), args[0], *completeFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Printf("completed %s (%s)\n", job.ID, job.ArtifactRef)
	},
}
