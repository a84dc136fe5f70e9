package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/ieltsnotes/internal/cli"
	"github.com/at-ishikawa/ieltsnotes/internal/datasync"
)

func newMigrateCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy notes of older releases into the notes database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dryRun {
				return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
					if result := s.manager.Migration(); result != nil {
						cli.PrintMigrationResult(s.out, *result)
					}
					return nil
				})
			}
			return runWithStorage(cmd, openStorage, func(ctx context.Context, s *session) error {
				result, err := s.manager.Coordinator().Migrate(ctx, datasync.MigrationOptions{DryRun: true})
				if err != nil {
					return fmt.Errorf("Coordinator.Migrate() > %w", err)
				}
				cli.PrintMigrationResult(s.out, *result)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be copied without writing")
	return cmd
}

func newRepairCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Normalize every stored note to the current schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStorage(cmd, openStorage, func(ctx context.Context, s *session) error {
				result, err := s.manager.Coordinator().Repair(ctx, datasync.MigrationOptions{DryRun: dryRun})
				if err != nil {
					return fmt.Errorf("Coordinator.Repair() > %w", err)
				}
				cli.PrintMigrationResult(s.out, *result)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be repaired without writing")
	return cmd
}
