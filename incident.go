package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/irdrive/internal/driveops"
	"github.com/tonimelisma/irdrive/internal/incident"
)

func newIncidentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incident",
		Short: "File and browse incident reports",
	}

	cmd.AddCommand(newIncidentCreateCmd())
	cmd.AddCommand(newIncidentListCmd())
	cmd.AddCommand(newIncidentFilesCmd())

	return cmd
}

func newIncidentCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <report.docx> [attachment...]",
		Short: "File a new incident report",
		Long: `File a report under <root>/<year>/<location>/<number>. The report document
is renamed to <number>.docx; attachments keep their file names. Filing fails
without changing anything if the number is already taken.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIncidentCreate,
	}

	cmd.Flags().Int("year", 0, "report year (required)")
	cmd.Flags().String("location", "", "ground station location (required)")
	cmd.Flags().String("serial", "", "serial number, 1 to 4 digits (required)")

	for _, name := range []string{"year", "location", "serial"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newIncidentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List filed reports for a year and location",
		Args:  cobra.NoArgs,
		RunE:  runIncidentList,
	}

	cmd.Flags().Int("year", 0, "report year (required)")
	cmd.Flags().String("location", "", "ground station location (required)")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("location")

	return cmd
}

func newIncidentFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files <folder-id>",
		Short: "List the files of a filed report",
		Args:  cobra.ExactArgs(1),
		RunE:  runIncidentFiles,
	}
}

func runIncidentCreate(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	year, _ := cmd.Flags().GetInt("year")
	location, _ := cmd.Flags().GetString("location")
	serial, _ := cmd.Flags().GetString("serial")

	doc, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading report: %w", err)
	}

	attachments := make([]driveops.Upload, 0, len(args)-1)

	for _, path := range args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading attachment: %w", err)
		}

		name := filepath.Base(path)
		attachments = append(attachments, driveops.Upload{Name: name, Data: data, ContentType: contentTypeOf(name)})
	}

	var filed *incident.Filed

	err = withIncidents(ctx, cc, func(svc *incident.Service) error {
		filed, err = svc.Create(ctx, incident.Report{
			Year:        year,
			Location:    location,
			Serial:      serial,
			Document:    doc,
			Attachments: attachments,
		})

		return err
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, filed)
	}

	cc.Statusf("Filed %s with %d file(s)\n", filed.Number, len(filed.Files))
	fmt.Println(filed.Folder.ID)

	return nil
}

func runIncidentList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	year, _ := cmd.Flags().GetInt("year")
	location, _ := cmd.Flags().GetString("location")

	var folders []driveops.Item

	err := withIncidents(ctx, cc, func(svc *incident.Service) error {
		var err error
		folders, err = svc.Folders(ctx, year, location)

		return err
	})
	if err != nil {
		return err
	}

	return printItems(cc, folders)
}

func runIncidentFiles(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	var files []driveops.Item

	err := withIncidents(ctx, cc, func(svc *incident.Service) error {
		var err error
		files, err = svc.Files(ctx, args[0])

		return err
	})
	if err != nil {
		return err
	}

	return printItems(cc, files)
}

func printItems(cc *CLIContext, items []driveops.Item) error {
	if cc.Flags.JSON {
		return printJSON(os.Stdout, items)
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{it.Name, formatSize(it.Size), formatTime(it.ModifiedAt), it.ID})
	}

	printTable(os.Stdout, isTerminal(os.Stdout), []string{"NAME", "SIZE", "MODIFIED", "ID"}, rows)

	return nil
}
