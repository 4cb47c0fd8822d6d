package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/hivelog/hivesync/internal/inbox"
	"github.com/hivelog/hivesync/internal/replica/schema"
)

// queue writes m to the inbox and reports it.
func queue(m inbox.Mutation, what string) {
	if _, err := inbox.Write(cfg.InboxDir(), m); err != nil {
		fatal("%v", err)
	}
	out.Success("Queued %s", what)
	out.Info("%s", out.Subtle("Applied by the running daemon, or run 'hivesync sync'"))
}

// upsert builds an upsert mutation and queues it.
func upsert(kind inbox.Kind, parentID string, entity any, what string) {
	m, err := inbox.Upsert(kind, parentID, entity)
	if err != nil {
		fatal("%v", err)
	}
	// Catch what would be rejected before it reaches the inbox.
	if err := m.Validate(); err != nil {
		fatal("%v", err)
	}
	queue(m, what)
}

func flagDate(cmd *cobra.Command, name string) schema.Date {
	s, _ := cmd.Flags().GetString(name)
	d, err := parseDate(s, time.Now())
	if err != nil {
		fatal("--%s: %v", name, err)
	}
	return d
}

func idFlag(cmd *cobra.Command) string {
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		return schema.NewID()
	}
	return id
}

// findHive looks a hive up in the local replica.
func findHive(id string) (*schema.Apiary, schema.Hive) {
	cl, err := openLocal(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer cl.Close()

	r, err := cl.replica(context.Background())
	if err != nil {
		fatal("%v", err)
	}
	a, h := r.Dataset.FindHive(id)
	if h == nil {
		fatal("hive %s is not in the local replica of %s", id, r.Context)
	}
	return a, h.Clone()
}

var apiaryCmd = &cobra.Command{
	Use:     "apiary",
	GroupID: "records",
	Short:   "Manage apiaries",
}

var apiaryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or rename an apiary",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		address, _ := cmd.Flags().GetString("address")
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")

		a := schema.Apiary{
			ID:       idFlag(cmd),
			Name:     args[0],
			Location: schema.Location{Latitude: lat, Longitude: lon, Address: address},
		}
		if err := a.Validate(); err != nil {
			fatal("%v", err)
		}
		upsert(inbox.KindApiary, "", a, fmt.Sprintf("apiary %q (%s)", a.Name, a.ID))
	},
}

var hiveCmd = &cobra.Command{
	Use:     "hive",
	GroupID: "records",
	Short:   "Manage hives",
}

var hiveAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a hive to an apiary",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		apiary, _ := cmd.Flags().GetString("apiary")
		hiveType, _ := cmd.Flags().GetString("type")
		status, _ := cmd.Flags().GetString("status")
		queenYear, _ := cmd.Flags().GetInt("queen-year")

		h := schema.Hive{
			ID:     idFlag(cmd),
			Name:   args[0],
			Type:   hiveType,
			Status: status,
			Queen:  schema.Queen{Year: queenYear},
		}
		upsert(inbox.KindHive, apiary, h, fmt.Sprintf("hive %q (%s) in %s", h.Name, h.ID, apiary))
	},
}

var hiveMoveCmd = &cobra.Command{
	Use:   "move <hive-id>",
	Short: "Move a hive to another apiary",
	Long: `Move a hive to another apiary. The move is recorded in the hive's
movement history. If another device moves the same hive concurrently,
the apiary it ends up in after the next sync is not defined.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		to, _ := cmd.Flags().GetString("to")
		reason, _ := cmd.Flags().GetString("reason")
		on := flagDate(cmd, "date")

		queue(inbox.Move(args[0], to, on, reason), fmt.Sprintf("move of hive %s to %s on %s", args[0], to, on))
	},
}

var hiveStatusCmd = &cobra.Command{
	Use:   "status <hive-id> <status>",
	Short: "Set a hive's status",
	Long: `Set a hive's status, for example Healthy, Weak, Queenless, Swarmed or Dead.
The hive's other fields are taken from the local replica.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, h := findHive(args[0])
		h.Status = args[1]
		// Nil collections keep the hive's records when applied.
		h.Inspections, h.Movements, h.Production = nil, nil, nil
		upsert(inbox.KindHive, a.ID, h, fmt.Sprintf("status %s for hive %s", h.Status, h.ID))
	},
}

var inspectionCmd = &cobra.Command{
	Use:     "inspection",
	GroupID: "records",
	Short:   "Record hive inspections",
}

var inspectionAddCmd = &cobra.Command{
	Use:   "add <hive-id>",
	Short: "Record an inspection",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		notes, _ := cmd.Flags().GetString("notes")
		queenSeen, _ := cmd.Flags().GetBool("queen-seen")
		brood, _ := cmd.Flags().GetInt("brood-frames")
		temperament, _ := cmd.Flags().GetString("temperament")

		in := schema.Inspection{
			ID:          idFlag(cmd),
			Date:        flagDate(cmd, "date"),
			Notes:       notes,
			QueenSeen:   queenSeen,
			BroodFrames: brood,
			Temperament: temperament,
		}
		upsert(inbox.KindInspection, args[0], in, fmt.Sprintf("inspection %s of hive %s on %s", in.ID, args[0], in.Date))
	},
}

var harvestCmd = &cobra.Command{
	Use:     "harvest",
	GroupID: "records",
	Short:   "Record harvests",
}

var harvestAddCmd = &cobra.Command{
	Use:   "add <hive-id> <quantity>",
	Short: "Record a harvest",
	Example: `  hivesync harvest add h-12 14.5 --unit kg
  hivesync harvest add h-12 0.3 --product wax --date "last saturday"`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		product, _ := cmd.Flags().GetString("product")
		unit, _ := cmd.Flags().GetString("unit")

		qty, err := decimal.NewFromString(args[1])
		if err != nil {
			fatal("invalid quantity %q: %v", args[1], err)
		}
		p := schema.ProductionRecord{
			ID:       idFlag(cmd),
			Date:     flagDate(cmd, "date"),
			Product:  product,
			Quantity: qty,
			Unit:     unit,
		}
		if err := p.Validate(); err != nil {
			fatal("%v", err)
		}
		upsert(inbox.KindProduction, args[0], p, fmt.Sprintf("%s %s of %s from hive %s", qty, unit, product, args[0]))
	},
}

var noteCmd = &cobra.Command{
	Use:     "note",
	GroupID: "records",
	Short:   "Write seasonal notes",
}

var noteAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Write or replace a seasonal note",
	Long: `Write a seasonal note. With --id an existing note is replaced; when two
devices edit the same note, the most recent edit wins.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		season, _ := cmd.Flags().GetString("season")
		year, _ := cmd.Flags().GetInt("year")
		content, _ := cmd.Flags().GetString("content")
		if year == 0 {
			year = time.Now().Year()
		}

		n := schema.SeasonalNote{
			ID:      idFlag(cmd),
			Season:  strings.ToLower(season),
			Year:    year,
			Title:   args[0],
			Content: content,
		}
		n.Touch()
		upsert(inbox.KindNote, "", n, fmt.Sprintf("note %q (%s)", n.Title, n.ID))
	},
}

var eventCmd = &cobra.Command{
	Use:     "event",
	GroupID: "records",
	Short:   "Plan calendar events",
}

var eventAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a calendar event",
	Example: `  hivesync event add "Varroa treatment" --date "next monday" --kind treatment --apiary a-1
  hivesync event add "Spring feeding" --date 2026-03-01 --end 2026-03-14`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, _ := cmd.Flags().GetString("kind")
		apiary, _ := cmd.Flags().GetString("apiary")
		hive, _ := cmd.Flags().GetString("hive")
		notes, _ := cmd.Flags().GetString("notes")
		done, _ := cmd.Flags().GetBool("done")

		e := schema.CalendarEvent{
			ID:       idFlag(cmd),
			Title:    args[0],
			Date:     flagDate(cmd, "date"),
			Kind:     kind,
			ApiaryID: apiary,
			HiveID:   hive,
			Done:     done,
			Notes:    notes,
		}
		if end, _ := cmd.Flags().GetString("end"); end != "" {
			e.EndDate = flagDate(cmd, "end")
		}
		if err := e.Validate(); err != nil {
			fatal("%v", err)
		}
		upsert(inbox.KindEvent, "", e, fmt.Sprintf("event %q on %s", e.Title, e.Date))
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	GroupID: "records",
	Short:   "Delete records by id",
	Long: `Delete apiaries, hives, inspections, harvests, events or notes by id.
Deleting an apiary or hive deletes everything it holds.

Deletions are permanent: the ids are remembered so the records never come
back, even from a device that has not synced yet.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		queue(inbox.Delete(args...), fmt.Sprintf("deletion of %s", strings.Join(args, ", ")))
	},
}

func init() {
	apiaryAddCmd.Flags().String("id", "", "Apiary id (default: generated; reuse to rename)")
	apiaryAddCmd.Flags().String("address", "", "Street address or description")
	apiaryAddCmd.Flags().Float64("lat", 0, "Latitude")
	apiaryAddCmd.Flags().Float64("lon", 0, "Longitude")
	apiaryCmd.AddCommand(apiaryAddCmd)

	hiveAddCmd.Flags().String("id", "", "Hive id (default: generated)")
	hiveAddCmd.Flags().String("apiary", "", "Apiary id (required)")
	hiveAddCmd.Flags().String("type", "langstroth", "Hive type")
	hiveAddCmd.Flags().String("status", schema.StatusHealthy, "Hive status")
	hiveAddCmd.Flags().Int("queen-year", 0, "Year the queen was introduced")
	_ = hiveAddCmd.MarkFlagRequired("apiary")
	hiveMoveCmd.Flags().String("to", "", "Destination apiary id (required)")
	hiveMoveCmd.Flags().String("date", "", "Date of the move (default today)")
	hiveMoveCmd.Flags().String("reason", "", "Reason for the move")
	_ = hiveMoveCmd.MarkFlagRequired("to")
	hiveCmd.AddCommand(hiveAddCmd, hiveMoveCmd, hiveStatusCmd)

	inspectionAddCmd.Flags().String("id", "", "Inspection id (default: generated)")
	inspectionAddCmd.Flags().String("date", "", "Inspection date (default today)")
	inspectionAddCmd.Flags().String("notes", "", "Notes")
	inspectionAddCmd.Flags().Bool("queen-seen", false, "The queen was seen")
	inspectionAddCmd.Flags().Int("brood-frames", 0, "Frames with brood")
	inspectionAddCmd.Flags().String("temperament", "", "calm, nervous or aggressive")
	inspectionCmd.AddCommand(inspectionAddCmd)

	harvestAddCmd.Flags().String("id", "", "Harvest id (default: generated)")
	harvestAddCmd.Flags().String("date", "", "Harvest date (default today)")
	harvestAddCmd.Flags().String("product", "honey", "honey, wax, pollen or propolis")
	harvestAddCmd.Flags().String("unit", "kg", "Unit of the quantity")
	harvestCmd.AddCommand(harvestAddCmd)

	noteAddCmd.Flags().String("id", "", "Note id (default: generated; reuse to replace)")
	noteAddCmd.Flags().String("season", "", "spring, summer, autumn or winter")
	noteAddCmd.Flags().Int("year", 0, "Year (default this year)")
	noteAddCmd.Flags().String("content", "", "Note text")
	noteCmd.AddCommand(noteAddCmd)

	eventAddCmd.Flags().String("id", "", "Event id (default: generated)")
	eventAddCmd.Flags().String("date", "", "Event date (default today)")
	eventAddCmd.Flags().String("end", "", "End date for multi-day events")
	eventAddCmd.Flags().String("kind", "other", "inspection, treatment, harvest, feeding or other")
	eventAddCmd.Flags().String("apiary", "", "Related apiary id")
	eventAddCmd.Flags().String("hive", "", "Related hive id")
	eventAddCmd.Flags().String("notes", "", "Notes")
	eventAddCmd.Flags().Bool("done", false, "Mark the event as done")
	eventCmd.AddCommand(eventAddCmd)

	rootCmd.AddCommand(apiaryCmd, hiveCmd, inspectionCmd, harvestCmd, noteCmd, eventCmd, deleteCmd)
}
