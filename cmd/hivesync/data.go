package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivelog/hivesync/internal/exporter"
	"github.com/hivelog/hivesync/internal/importer"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "data",
	Short:   "Export the local replica",
	Long: `Write the replica of the current context, including its deleted ids, as
JSON, YAML or TOML. The format follows the output file's extension unless
--format is given.

Examples:
  hivesync export > backup.json
  hivesync export -o records.yaml
  hivesync export --format toml`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		formatFlag, _ := cmd.Flags().GetString("format")

		format, err := exporter.ParseFormat(formatFlag)
		if err != nil {
			fatal("%v", err)
		}
		if formatFlag == "" && output != "" {
			if format, err = exporter.FormatFor(output); err != nil {
				fatal("%v", err)
			}
		}

		cl, err := openLocal(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer cl.Close()

		r, err := cl.replica(context.Background())
		if err != nil {
			fatal("%v", err)
		}
		if !r.Seeded {
			errOut.Warning("%s has never been synced on this device; the export is empty", r.Context)
		}

		doc := exporter.NewDocument(r.Dataset, r.Tombstones, r.Context.String())
		now := time.Now().UTC()
		doc.ExportedAt = &now

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				fatal("%v", err)
			}
			defer f.Close()
			w = f
		}
		if err := exporter.Encode(w, doc, format); err != nil {
			fatal("%v", err)
		}
		if output != "" {
			out.Success("Exported %s to %s", r.Context, output)
		}
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Import records from an export or a legacy backup",
	Long: `Import apiaries, hives, events, notes and deleted ids from a file written
by 'hivesync export' or by the older app's JSON backup. Each record is
queued as an edit of the current context; the daemon or 'hivesync sync'
applies them.

Records that fail validation are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		formatFlag, _ := cmd.Flags().GetString("format")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")

		var format exporter.Format
		if formatFlag != "" {
			f, err := exporter.ParseFormat(formatFlag)
			if err != nil {
				fatal("%v", err)
			}
			format = f
		}

		result, err := importer.Import(context.Background(), importer.Options{
			From:     args[0],
			Format:   format,
			InboxDir: cfg.InboxDir(),
			DryRun:   dryRun,
			Backup:   backup,
		})
		if err != nil {
			fatal("%v", err)
		}

		if dryRun {
			out.Info("%s", out.Title("Dry run, nothing queued"))
		} else {
			out.Success("Queued %d edits from %s", result.FilesWritten, args[0])
		}
		out.Fields(
			"Apiaries", strconv.Itoa(result.Apiaries),
			"Hives", strconv.Itoa(result.Hives),
			"Events", strconv.Itoa(result.Events),
			"Notes", strconv.Itoa(result.Notes),
			"Deleted ids", strconv.Itoa(result.Deleted),
		)
		if result.BackupCreated != "" {
			out.Info("Backup: %s", result.BackupCreated)
		}
		for _, e := range result.Errors {
			out.Warning("%s", e)
		}
		if len(result.Errors) > 0 {
			fmt.Fprintf(os.Stderr, "%d records skipped\n", len(result.Errors))
		}
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().String("format", "", "json, yaml or toml")
	importCmd.Flags().String("format", "", "json, yaml or toml (default from extension)")
	importCmd.Flags().Bool("dry-run", false, "Report what would be imported")
	importCmd.Flags().Bool("backup", false, "Copy the source file before importing")
	rootCmd.AddCommand(exportCmd, importCmd)
}
