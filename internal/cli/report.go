package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/at-ishikawa/ieltsnotes/internal/collection"
	"github.com/at-ishikawa/ieltsnotes/internal/datasync"
	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
	"github.com/at-ishikawa/ieltsnotes/internal/practice"
	"github.com/at-ishikawa/ieltsnotes/internal/recovery"
	"github.com/at-ishikawa/ieltsnotes/internal/statistics"
	"github.com/at-ishikawa/ieltsnotes/internal/storage"
)

// PrintMigrationResult summarizes what Init or repair changed
func PrintMigrationResult(w io.Writer, result datasync.MigrationResult) {
	if result.LegacyCopied {
		_, _ = fmt.Fprintf(w, "Copied legacy notes: %d new, %d skipped, %d audio moved\n", result.NotesNew, result.NotesSkipped, result.AudioMoved)
		_, _ = fmt.Fprintf(w, "Copied practice records: %d new, %d skipped\n", result.PracticeNew, result.PracticeSkipped)
	}
	_, _ = fmt.Fprintf(w, "Repaired notes: %d in the notes database, %d in the flat store\n", result.Repaired, result.FlatRepaired)
	if result.Warnings > 0 {
		_, _ = fmt.Fprintf(w, "Warnings: %d\n", result.Warnings)
	}
	if len(result.Unwritable) > 0 {
		_, _ = fmt.Fprintf(w, "Could not repair: %s\n", strings.Join(result.Unwritable, ", "))
	}
}

func PrintImportResult(w io.Writer, result datasync.ImportResult, dryRun bool) {
	prefix := "Imported"
	if dryRun {
		prefix = "Would import"
	}
	_, _ = fmt.Fprintf(w, "%s %d new notes, %d updated, %d audio moved\n", prefix, result.NotesNew, result.NotesUpdated, result.AudioMoved)
	if result.Warnings > 0 {
		_, _ = fmt.Fprintf(w, "Warnings: %d\n", result.Warnings)
	}
	if result.BackupID != 0 {
		_, _ = fmt.Fprintf(w, "Previous notes were saved as backup #%d\n", result.BackupID)
	}
}

// PrintStorageInfo displays usage of the flat store and both databases
func PrintStorageInfo(w io.Writer, info storage.Info) {
	_, _ = fmt.Fprintln(w, "Storage Report")
	_, _ = fmt.Fprintln(w, "==============")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Flat store: %s of %s (%.1f%%)\n", formatBytes(info.Flat.UsedBytes), formatBytes(info.Flat.QuotaBytes), info.Flat.Percent)
	if len(info.Flat.PerKey) > 0 {
		_, _ = fmt.Fprintf(w, "  %-24s  %12s\n", "Key", "Size")
		_, _ = fmt.Fprintf(w, "  %-24s  %12s\n", "---", "----")
		for _, k := range info.Flat.PerKey {
			_, _ = fmt.Fprintf(w, "  %-24s  %12s\n", k.Key, formatBytes(k.Bytes))
		}
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "%-18s  %d\n", "Notes:", info.Notes)
	_, _ = fmt.Fprintf(w, "%-18s  %d\n", "Backups:", info.Backups)
	_, _ = fmt.Fprintf(w, "%-18s  %d\n", "Practice records:", info.PracticeRuns)
	_, _ = fmt.Fprintf(w, "%-18s  %d (%s)\n", "Audio records:", info.AudioRecords, formatBytes(info.AudioBytes))
	if len(info.OrphanAudio) > 0 {
		_, _ = fmt.Fprintf(w, "%-18s  %s\n", "Orphan audio:", strings.Join(info.OrphanAudio, ", "))
	}
}

func PrintCleanupResult(w io.Writer, key string, result recovery.Result) {
	switch result.Action {
	case recovery.StripAudio:
		_, _ = fmt.Fprintf(w, "%s: moved %d audio payloads, dropped %d\n", key, result.AudioMoved, result.AudioDropped)
	case recovery.PruneOld:
		_, _ = fmt.Fprintf(w, "%s: pruned %d notes\n", key, result.Pruned)
	default:
		_, _ = fmt.Fprintf(w, "%s: nothing changed\n", key)
	}
}

// PrintPracticeHistory lists practice sessions, newest first
func PrintPracticeHistory(w io.Writer, records []practice.Record) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No practice records found.")
		return
	}
	_, _ = fmt.Fprintf(w, "%-24s  %-6s  %s\n", "Date", "Notes", "Note IDs")
	_, _ = fmt.Fprintf(w, "%-24s  %-6s  %s\n", "----", "-----", "--------")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%-24s  %-6d  %s\n", r.Date, len(r.NoteIDs), strings.Join(r.NoteIDs, ", "))
	}
}

func PrintNotes(w io.Writer, notes []notebook.Note) {
	if len(notes) == 0 {
		_, _ = fmt.Fprintln(w, "No notes found.")
		return
	}
	_, _ = fmt.Fprintf(w, "%-32s  %-12s  %-10s  %-12s  %-5s  %s\n", "ID", "Chapter", "Test", "Part", "Audio", "Date")
	_, _ = fmt.Fprintf(w, "%-32s  %-12s  %-10s  %-12s  %-5s  %s\n", "--", "-------", "----", "----", "-----", "----")
	for _, n := range notes {
		_, _ = fmt.Fprintf(w, "%-32s  %-12s  %-10s  %-12s  %-5s  %s\n", n.ID, n.Chapter, n.Test, n.Part, audioLabel(n), n.Date)
	}
}

func audioLabel(n notebook.Note) string {
	switch {
	case n.UsesBlobStore():
		return "db"
	case n.HasInlineAudio():
		return "inline"
	default:
		return "-"
	}
}

func PrintFolders(w io.Writer, folders []collection.Folder) {
	if len(folders) == 0 {
		_, _ = fmt.Fprintln(w, "No folders found.")
		return
	}
	for _, f := range folders {
		_, _ = fmt.Fprintf(w, "%-32s  %d notes\n", f.Category, f.NoteCount)
	}
}

// PrintPracticeStatistics displays practice sessions per month
func PrintPracticeStatistics(w io.Writer, result statistics.StatisticsResult) {
	if len(result.Periods) == 0 {
		_, _ = fmt.Fprintln(w, "No practice records found for the specified period.")
		return
	}

	_, _ = fmt.Fprintln(w, "Practice Statistics Report")
	_, _ = fmt.Fprintln(w, "==========================")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "%-10s  %-8s  %-9s  %-24s\n", "Period", "Sessions", "New Notes", "Repeats (Total/Unique)")
	_, _ = fmt.Fprintf(w, "%-10s  %-8s  %-9s  %-24s\n", "------", "--------", "---------", "----------------------")
	for _, s := range result.Periods {
		_, _ = fmt.Fprintf(w, "%-10s  %-8d  %-9d  %-24s\n",
			s.Period,
			s.Sessions,
			s.NewNotes,
			fmt.Sprintf("%d / %d", s.RepeatsCount, s.RepeatsUnique),
		)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "%-10s  %-8d  %-9d  %-24s\n",
		"Totals:",
		result.Aggregate.Sessions,
		result.Aggregate.NewNotes,
		fmt.Sprintf("%d / %d", result.Aggregate.RepeatsCount, result.Aggregate.RepeatsUnique),
	)
}
