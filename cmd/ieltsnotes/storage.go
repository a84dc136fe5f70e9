package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/ieltsnotes/internal/cli"
	"github.com/at-ishikawa/ieltsnotes/internal/collection"
	"github.com/at-ishikawa/ieltsnotes/internal/recovery"
)

func newStorageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and free storage",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Show how much each store uses",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
					info, err := s.manager.StorageInfo(ctx)
					if err != nil {
						return fmt.Errorf("StorageInfo() > %w", err)
					}
					cli.PrintStorageInfo(s.out, info)
					return nil
				})
			},
		},
		newStorageCleanupCommand(),
	)
	return cmd
}

func newStorageCleanupCommand() *cobra.Command {
	var stripAudio bool
	var pruneOld bool
	var keys []string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Free flat store space by moving audio out or pruning old notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			action := recovery.StripAudio
			if pruneOld {
				action = recovery.PruneOld
			}
			for _, key := range keys {
				if !slices.Contains(collection.NoteKeys, key) {
					return fmt.Errorf("unknown collection %s, use one of %v", key, collection.NoteKeys)
				}
			}

			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				flow := s.manager.Recovery()
				for _, key := range keys {
					result, err := flow.Cleanup(ctx, key, action)
					if err != nil {
						return fmt.Errorf("Cleanup(%s) > %w", key, err)
					}
					cli.PrintCleanupResult(s.out, key, result)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&stripAudio, "strip-audio", false, "move inline audio to the audio database")
	cmd.Flags().BoolVar(&pruneOld, "prune-old", false, "delete notes older than recovery.prune_age_days")
	cmd.Flags().StringSliceVar(&keys, "key", collection.NoteKeys, "flat store collections to clean up")
	cmd.MarkFlagsMutuallyExclusive("strip-audio", "prune-old")
	cmd.MarkFlagsOneRequired("strip-audio", "prune-old")
	return cmd
}
