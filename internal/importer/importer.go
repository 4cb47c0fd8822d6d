// Package importer turns an exported replica document into inbox mutations.
//
// Imports never touch the replica directly. Each entity becomes an upsert
// file in the inbox and the deleted ids become one trailing delete, so an
// import goes through the same scheduler path as any other local edit and
// its deletions stick against entities it also carries.
package importer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hivelog/hivesync/internal/exporter"
	"github.com/hivelog/hivesync/internal/inbox"
)

// Options configures an import.
type Options struct {
	From     string // document path
	Format   exporter.Format
	InboxDir string
	DryRun   bool // count without writing
	Backup   bool // copy the source next to itself first
}

// Result contains statistics about the import.
type Result struct {
	Apiaries      int
	Hives         int
	Events        int
	Notes         int
	Deleted       int
	FilesWritten  int
	BackupCreated string
	Errors        []string
}

// ReadFile loads a document, picking the format from the extension when
// format is empty.
func ReadFile(path string, format exporter.Format) (*exporter.Document, error) {
	if format == "" {
		f, err := exporter.FormatFor(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	return exporter.Decode(file, format)
}

// Mutations converts doc into inbox mutations: apiaries (without their
// hives), then hives, then events and notes, then one delete. Entities that
// fail validation are reported and skipped.
func Mutations(doc *exporter.Document, result *Result) []inbox.Mutation {
	var out []inbox.Mutation
	add := func(what string, kind inbox.Kind, parent string, entity any) bool {
		m, err := inbox.Upsert(kind, parent, entity)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", what, err))
			return false
		}
		out = append(out, m)
		return true
	}

	for _, a := range doc.Apiaries {
		hives := a.Hives
		if err := a.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("apiary %q: %v", a.ID, err))
			continue
		}
		a.Hives = nil
		if !add("apiary "+a.ID, inbox.KindApiary, "", a) {
			continue
		}
		result.Apiaries++
		for _, h := range hives {
			if add("hive "+h.ID, inbox.KindHive, a.ID, h) {
				result.Hives++
			}
		}
	}
	for _, e := range doc.CalendarEvents {
		if err := e.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("event %q: %v", e.ID, err))
			continue
		}
		if add("event "+e.ID, inbox.KindEvent, "", e) {
			result.Events++
		}
	}
	for _, n := range doc.SeasonalNotes {
		if n.ID == "" {
			result.Errors = append(result.Errors, "note: id is required")
			continue
		}
		if add("note "+n.ID, inbox.KindNote, "", n) {
			result.Notes++
		}
	}
	if ids := doc.DeletedIDs.IDs(); len(ids) > 0 {
		out = append(out, inbox.Delete(ids...))
		result.Deleted = len(ids)
	}
	return out
}

// Import reads opts.From and writes its mutations into opts.InboxDir.
func Import(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	if _, err := os.Stat(opts.From); err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}
	if opts.InboxDir == "" && !opts.DryRun {
		return nil, fmt.Errorf("inbox dir cannot be empty")
	}

	if opts.Backup && !opts.DryRun {
		backupPath := opts.From + ".backup." + time.Now().Format("20060102-150405")
		input, err := os.ReadFile(opts.From)
		if err != nil {
			return nil, fmt.Errorf("failed to read input for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	doc, err := ReadFile(opts.From, opts.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", opts.From, err)
	}

	for _, m := range Mutations(doc, result) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if opts.DryRun {
			continue
		}
		if _, err := inbox.Write(opts.InboxDir, m); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to write mutation: %v", err))
			continue
		}
		result.FilesWritten++
	}
	return result, nil
}

