package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/ieltsnotes/internal/cli"
	"github.com/at-ishikawa/ieltsnotes/internal/collection"
	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

func newFoldersCommand() *cobra.Command {
	var skill string

	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage speaking and writing note folders",
	}
	cmd.PersistentFlags().StringVar(&skill, "skill", "speaking", "speaking or writing")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List folders and their note counts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithFolders(cmd, skill, func(ctx context.Context, s *session, key string, notes []notebook.Note) error {
					cli.PrintFolders(s.out, collection.Folders(notes))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create an empty folder",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithFolders(cmd, skill, func(ctx context.Context, s *session, key string, notes []notebook.Note) error {
					updated, err := collection.CreateFolder(notes, args[0], notebook.NewID, notebook.FormatDate(time.Now()))
					if err != nil {
						return fmt.Errorf("collection.CreateFolder() > %w", err)
					}
					if len(updated) == len(notes) {
						_, _ = fmt.Fprintf(s.out, "Folder %s already exists\n", args[0])
						return nil
					}
					placeholder := updated[len(updated)-1]
					if err := s.manager.SaveCollection(ctx, key, updated, placeholder.ID); err != nil {
						return fmt.Errorf("SaveCollection(%s) > %w", key, err)
					}
					_, _ = fmt.Fprintf(s.out, "Created folder %s\n", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a folder with all of its notes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithFolders(cmd, skill, func(ctx context.Context, s *session, key string, notes []notebook.Note) error {
					remaining, removed := collection.DeleteFolder(notes, args[0])
					if len(removed) == 0 {
						return fmt.Errorf("folder %s not found", args[0])
					}
					if err := s.manager.SaveCollection(ctx, key, remaining, ""); err != nil {
						return fmt.Errorf("SaveCollection(%s) > %w", key, err)
					}
					for _, id := range removed {
						if err := s.manager.DeleteAudio(ctx, id); err != nil {
							return fmt.Errorf("DeleteAudio(%s) > %w", id, err)
						}
					}
					_, _ = fmt.Fprintf(s.out, "Deleted folder %s with %d notes\n", args[0], len(removed))
					return nil
				})
			},
		},
	)
	return cmd
}

func runWithFolders(cmd *cobra.Command, skill string, fn func(ctx context.Context, s *session, key string, notes []notebook.Note) error) error {
	key, err := collection.FolderKey(skill)
	if err != nil {
		return err
	}
	return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
		notes, err := s.manager.LoadCollection(key)
		if err != nil {
			return fmt.Errorf("LoadCollection(%s) > %w", key, err)
		}
		return fn(ctx, s, key, notes)
	})
}
