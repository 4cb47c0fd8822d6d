package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hivelog/hivesync/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "sync",
	Short:   "Write the configuration file",
	Long: `Create the data directory and write config.yaml with the given settings
merged over any existing configuration.

Examples:
  hivesync init --url https://sync.example.org --api-key $KEY --team north
  hivesync init --remote s3 --bucket hive-replicas --region eu-west-1
  hivesync init --remote sql --sql-driver pgx --dsn postgres://...`,
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		c, err := config.Load(v)
		if err != nil {
			fatal("%v", err)
		}
		if err := os.MkdirAll(c.InboxDir(), 0o755); err != nil {
			fatal("%v", err)
		}
		path, err := config.Write(v)
		if err != nil {
			fatal("%v", err)
		}
		out.Success("Wrote %s", path)
		out.Fields(
			"Data", c.DataDir,
			"Remote", c.Remote.Driver,
			"Inbox", c.InboxDir(),
			"Replica", filepath.Base(c.ReplicaPath()),
		)
		out.Info("Start syncing with 'hivesync daemon'")
	},
}

func init() {
	f := initCmd.Flags()
	f.String("api-key", "", "API key for the http driver")
	f.String("dsn", "", "Database DSN for the sql driver")
	f.String("sql-driver", "", "sqlite or pgx")
	f.String("bucket", "", "Bucket for the s3 driver")
	f.String("region", "", "S3 region")
	f.String("endpoint", "", "S3-compatible endpoint, e.g. MinIO")
	f.Bool("path-style", false, "Use path-style S3 addressing")
	f.StringSlice("team", nil, "Team id this account belongs to (repeatable)")

	err := config.BindFlags(v, f, map[string]string{
		"remote.api_key":       "api-key",
		"remote.dsn":           "dsn",
		"remote.sql_driver":    "sql-driver",
		"remote.s3.bucket":     "bucket",
		"remote.s3.region":     "region",
		"remote.s3.endpoint":   "endpoint",
		"remote.s3.path_style": "path-style",
		"teams":                "team",
	})
	if err != nil {
		panic(err)
	}
	rootCmd.AddCommand(initCmd)
}
