package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/ieltsnotes/internal/cli"
	"github.com/at-ishikawa/ieltsnotes/internal/practice"
	"github.com/at-ishikawa/ieltsnotes/internal/statistics"
)

func newPracticeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Intensive listening practice",
	}
	cmd.AddCommand(
		newPracticeStartCommand(),
		newPracticeHistoryCommand(),
	)
	return cmd
}

func newPracticeStartCommand() *cobra.Command {
	var sentences int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Type sentences of recent notes from memory of their recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				notes, err := s.manager.GetAllNotes(ctx)
				if err != nil {
					return fmt.Errorf("GetAllNotes() > %w", err)
				}
				count := sentences
				if count <= 0 {
					count = s.cfg.Practice.SentencesPerSession
				}
				drill, err := practice.NewBuilder().Build(notes, practice.DrillOptions{
					Count:     count,
					MinLength: s.cfg.Practice.MinSentenceLength,
					Exclude:   s.manager.GetRecentPracticeNoteIDs(ctx, s.cfg.Practice.RecentSessions),
				})
				if err != nil {
					return fmt.Errorf("Builder.Build() > %w", err)
				}
				if len(drill) == 0 {
					_, _ = fmt.Fprintln(s.out, "No sentences to practice. Add notes with content first.")
					return nil
				}
				return s.console.Run(ctx, cli.NewDrillCLI(s.console, drill, notes, s.manager))
			})
		},
	}
	cmd.Flags().IntVarP(&sentences, "sentences", "n", 0, "number of sentences, practice.sentences_per_session when 0")
	return cmd
}

func newPracticeHistoryCommand() *cobra.Command {
	var limit int
	var monthly bool
	var year int
	var month int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent practice sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if month != 0 && year == 0 {
				return fmt.Errorf("--month requires --year")
			}
			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				if monthly {
					records, err := s.manager.GetAllPracticeRecords(ctx)
					if err != nil {
						return fmt.Errorf("GetAllPracticeRecords() > %w", err)
					}
					cli.PrintPracticeStatistics(s.out, statistics.CalculateStatistics(records, year, month))
					return nil
				}
				records, err := s.manager.GetRecentPracticeRecords(ctx, limit)
				if err != nil {
					return fmt.Errorf("GetRecentPracticeRecords() > %w", err)
				}
				cli.PrintPracticeHistory(s.out, records)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of sessions to show")
	cmd.Flags().BoolVar(&monthly, "monthly", false, "show statistics per month instead of sessions")
	cmd.Flags().IntVar(&year, "year", 0, "only this year, with --monthly")
	cmd.Flags().IntVar(&month, "month", 0, "only this month of --year, with --monthly")
	return cmd
}
