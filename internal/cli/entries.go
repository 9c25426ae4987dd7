package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/timebill/internal/domain"
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Manage time entries",
	Long:  `List, add, edit, and delete time entries. Invoiced entries are locked.`,
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List time entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()
		now := appInstance.Clock.Now()

		filter := domain.EntryFilter{}
		filter.Offset, _ = cmd.Flags().GetInt("offset")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		if cmd.Flags().Changed("project") {
			ref, _ := cmd.Flags().GetString("project")
			project, err := appInstance.Catalog.ResolveProject(ctx, owner, ref)
			if err != nil {
				return fmt.Errorf("failed to resolve project: %w", err)
			}
			filter.ProjectID = &project.ID
		}

		if cmd.Flags().Changed("start") {
			s, _ := cmd.Flags().GetString("start")
			from, err := parseDate(s, now)
			if err != nil {
				return fmt.Errorf("invalid start date: %w", err)
			}
			filter.From = &from
		}

		if cmd.Flags().Changed("end") {
			s, _ := cmd.Flags().GetString("end")
			end, err := parseDate(s, now)
			if err != nil {
				return fmt.Errorf("invalid end date: %w", err)
			}
			// The end day is inclusive
			to := end.AddDate(0, 0, 1)
			filter.To = &to
		}

		if cmd.Flags().Changed("billable") {
			b, _ := cmd.Flags().GetBool("billable")
			filter.IsBillable = &b
		}
		if cmd.Flags().Changed("invoiced") {
			b, _ := cmd.Flags().GetBool("invoiced")
			filter.IsInvoiced = &b
		}

		entries, err := appInstance.Entries.List(ctx, owner, filter)
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No entries found")
			return nil
		}

		names, err := projectNames(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%-9s %-16s %-18s %-12s %-4s %-30s\n", "ID", "Start", "Project", "Duration", "Flag", "Description")
		fmt.Println("------------------------------------------------------------------------------------------------")

		var total int64
		for _, entry := range entries {
			duration := "running"
			if !entry.IsRunning() {
				duration = formatDuration(entry.ComputedDuration())
				total += entry.ComputedDuration()
			}

			fmt.Printf("%-9s %-16s %-18s %-12s %-4s %-30s\n",
				shortID(entry.ID),
				formatLocal(entry.StartTime),
				truncate(names.name(entry.ProjectID), 18),
				duration,
				entryFlags(entry),
				truncate(entry.Description, 30),
			)
		}

		fmt.Println("------------------------------------------------------------------------------------------------")
		fmt.Printf("%d entries, %s total\n", len(entries), formatDuration(total))

		return nil
	},
}

var entriesAddCmd = &cobra.Command{
	Use:   "add <project> <start> <end> [description...]",
	Short: "Add a completed entry with explicit start and end times",
	Long: `Add a completed time entry. Times accept YYYY-MM-DD HH:MM[:SS], RFC 3339,
or HH:MM for today.

Example: timebill entries add Website "2025-03-03 09:00" "2025-03-03 10:30" Homepage`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()
		now := appInstance.Clock.Now()

		project, err := appInstance.Catalog.ResolveProject(ctx, owner, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve project: %w", err)
		}

		start, err := parseDateTime(args[1], now)
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		end, err := parseDateTime(args[2], now)
		if err != nil {
			return fmt.Errorf("invalid end time: %w", err)
		}

		nonBillable, _ := cmd.Flags().GetBool("non-billable")
		description := strings.Join(args[3:], " ")

		entry, err := appInstance.Entries.Create(ctx, owner, project.ID, description, start, end, !nonBillable)
		if err != nil {
			return fmt.Errorf("failed to add entry: %w", err)
		}

		fmt.Printf("✓ Entry added (ID: %s)\n", shortID(entry.ID))
		fmt.Printf("  Project: %s\n", project.Name)
		fmt.Printf("  Duration: %s\n", formatDuration(entry.ComputedDuration()))

		return nil
	},
}

var entriesLogCmd = &cobra.Command{
	Use:   "log <project> <duration> [description...]",
	Short: "Log an entry by duration",
	Long: `Log a completed entry from a duration such as 1h30m or 45m. The entry
starts at --start, or ends now when --start is omitted.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()
		now := appInstance.Clock.Now()

		project, err := appInstance.Catalog.ResolveProject(ctx, owner, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve project: %w", err)
		}

		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[1], err)
		}
		secs := int64(d / time.Second)

		start := now.Add(-time.Duration(secs) * time.Second)
		if cmd.Flags().Changed("start") {
			s, _ := cmd.Flags().GetString("start")
			if start, err = parseDateTime(s, now); err != nil {
				return fmt.Errorf("invalid start time: %w", err)
			}
		}

		nonBillable, _ := cmd.Flags().GetBool("non-billable")
		description := strings.Join(args[2:], " ")

		entry, err := appInstance.Entries.CreateFromDuration(ctx, owner, project.ID, description, start, secs, !nonBillable)
		if err != nil {
			return fmt.Errorf("failed to log entry: %w", err)
		}

		fmt.Printf("✓ Logged %s on %s (ID: %s)\n", formatDuration(entry.ComputedDuration()), project.Name, shortID(entry.ID))

		return nil
	},
}

var entriesEditCmd = &cobra.Command{
	Use:   "edit <entry_id>",
	Short: "Edit a time entry",
	Long:  `Edit an entry that has not been invoiced. Every changed field is recorded in the entry history.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		owner := appInstance.Owner()
		now := appInstance.Clock.Now()

		id, err := resolveEntryID(ctx, args[0])
		if err != nil {
			return err
		}

		var patch domain.EntryPatch
		patch.Reason, _ = cmd.Flags().GetString("reason")

		if cmd.Flags().Changed("project") {
			ref, _ := cmd.Flags().GetString("project")
			project, err := appInstance.Catalog.ResolveProject(ctx, owner, ref)
			if err != nil {
				return fmt.Errorf("failed to resolve project: %w", err)
			}
			patch.ProjectID = &project.ID
		}
		if cmd.Flags().Changed("description") {
			desc, _ := cmd.Flags().GetString("description")
			patch.Description = &desc
		}
		if cmd.Flags().Changed("start") {
			s, _ := cmd.Flags().GetString("start")
			start, err := parseDateTime(s, now)
			if err != nil {
				return fmt.Errorf("invalid start time: %w", err)
			}
			patch.StartTime = &start
		}
		if cmd.Flags().Changed("end") {
			s, _ := cmd.Flags().GetString("end")
			end, err := parseDateTime(s, now)
			if err != nil {
				return fmt.Errorf("invalid end time: %w", err)
			}
			patch.EndTime = &end
		}
		if cmd.Flags().Changed("billable") {
			b, _ := cmd.Flags().GetBool("billable")
			patch.IsBillable = &b
		}

		if patch.IsEmpty() {
			return fmt.Errorf("nothing to change: pass at least one of --project, --description, --start, --end, --billable")
		}

		entry, err := appInstance.Entries.Update(ctx, owner, id, patch)
		if err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}

		fmt.Printf("✓ Entry updated (ID: %s)\n", shortID(entry.ID))
		if !entry.IsRunning() {
			fmt.Printf("  Duration: %s\n", formatDuration(entry.ComputedDuration()))
		}

		return nil
	},
}

var entriesDeleteCmd = &cobra.Command{
	Use:   "delete <entry_id>",
	Short: "Delete a time entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveEntryID(ctx, args[0])
		if err != nil {
			return err
		}

		reason, _ := cmd.Flags().GetString("reason")
		if err := appInstance.Entries.Delete(ctx, appInstance.Owner(), id, reason); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}

		fmt.Printf("✓ Entry deleted (ID: %s)\n", shortID(id))
		return nil
	},
}

var entriesHistoryCmd = &cobra.Command{
	Use:   "history <entry_id>",
	Short: "Show the change history of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		id, err := resolveEntryID(ctx, args[0])
		if err != nil {
			return err
		}

		history, err := appInstance.Entries.History(ctx, appInstance.Owner(), id)
		if err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}

		if len(history) == 0 {
			fmt.Println("No changes recorded")
			return nil
		}

		fmt.Printf("%-16s %-12s %-22s %-22s %-20s\n", "Changed", "Field", "Old", "New", "Reason")
		fmt.Println("------------------------------------------------------------------------------------------------")

		for _, h := range history {
			fmt.Printf("%-16s %-12s %-22s %-22s %-20s\n",
				formatLocal(h.ChangedAt),
				h.FieldName,
				truncate(h.OldValue, 22),
				truncate(h.NewValue, 22),
				truncate(h.ChangeReason, 20),
			)
		}

		return nil
	},
}

// entryFlags is a compact marker column: B billable, I invoiced, R running
func entryFlags(e *domain.TimeEntry) string {
	var b strings.Builder
	if e.IsBillable {
		b.WriteByte('B')
	}
	if e.IsInvoiced {
		b.WriteByte('I')
	}
	if e.IsRunning() {
		b.WriteByte('R')
	}
	return b.String()
}

// projectNameIndex maps project ids to names for table output
type projectNameIndex map[string]string

func (p projectNameIndex) name(id string) string {
	if n, ok := p[id]; ok {
		return n
	}
	return "(deleted " + shortID(id) + ")"
}

func projectNames(ctx context.Context) (projectNameIndex, error) {
	projects, err := appInstance.Catalog.ListProjects(ctx, appInstance.Owner())
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	index := make(projectNameIndex, len(projects))
	for _, p := range projects {
		index[p.ID] = p.Name
	}
	return index, nil
}

func init() {
	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesAddCmd)
	entriesCmd.AddCommand(entriesLogCmd)
	entriesCmd.AddCommand(entriesEditCmd)
	entriesCmd.AddCommand(entriesDeleteCmd)
	entriesCmd.AddCommand(entriesHistoryCmd)

	// List flags
	entriesListCmd.Flags().String("project", "", "Filter by project id or name")
	entriesListCmd.Flags().String("start", "", "Only entries starting on or after this day (YYYY-MM-DD or 'today')")
	entriesListCmd.Flags().String("end", "", "Only entries starting on or before this day (YYYY-MM-DD or 'today')")
	entriesListCmd.Flags().Bool("billable", false, "Filter by billable flag")
	entriesListCmd.Flags().Bool("invoiced", false, "Filter by invoiced flag")
	entriesListCmd.Flags().Int("offset", 0, "Skip this many entries")
	entriesListCmd.Flags().Int("limit", domain.DefaultListLimit, "Maximum entries to show")

	// Add/log flags
	entriesAddCmd.Flags().Bool("non-billable", false, "Record the entry as non-billable")
	entriesLogCmd.Flags().Bool("non-billable", false, "Record the entry as non-billable")
	entriesLogCmd.Flags().String("start", "", "Start time (default: duration before now)")

	// Edit flags
	entriesEditCmd.Flags().String("project", "", "New project id or name")
	entriesEditCmd.Flags().String("description", "", "New description")
	entriesEditCmd.Flags().String("start", "", "New start time")
	entriesEditCmd.Flags().String("end", "", "New end time")
	entriesEditCmd.Flags().Bool("billable", true, "Set the billable flag")
	entriesEditCmd.Flags().String("reason", "", "Reason recorded in the history")

	// Delete flags
	entriesDeleteCmd.Flags().String("reason", "", "Reason recorded in the history")
}
