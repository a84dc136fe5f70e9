package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/ieltsnotes/internal/cli"
	"github.com/at-ishikawa/ieltsnotes/internal/datasync"
	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

func newNotesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage listening notes",
	}
	cmd.AddCommand(
		newNotesListCommand(),
		newNotesShowCommand(),
		newNotesAddCommand(),
		newNotesDeleteCommand(),
	)
	return cmd
}

func newNotesListCommand() *cobra.Command {
	var chapter string
	var questionType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				notes, err := s.manager.GetAllNotes(ctx)
				if err != nil {
					return fmt.Errorf("GetAllNotes() > %w", err)
				}
				cli.PrintNotes(s.out, filterNotes(notes, chapter, questionType))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&chapter, "chapter", "", "only notes of this chapter")
	cmd.Flags().StringVar(&questionType, "type", "", "only notes of this question type")
	return cmd
}

func filterNotes(notes []notebook.Note, chapter, questionType string) []notebook.Note {
	if questionType != "" {
		questionType = notebook.CanonicalQuestionType(questionType)
	}
	filtered := []notebook.Note{}
	for _, n := range notes {
		if chapter != "" && n.Chapter != chapter {
			continue
		}
		if questionType != "" && n.QuestionType != questionType {
			continue
		}
		filtered = append(filtered, n)
	}
	return filtered
}

func newNotesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a note as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				n, err := s.manager.GetNote(ctx, args[0])
				if err != nil {
					return fmt.Errorf("GetNote(%s) > %w", args[0], err)
				}
				content, err := json.MarshalIndent(n.ToRaw(), "", "  ")
				if err != nil {
					return fmt.Errorf("json.MarshalIndent() > %w", err)
				}
				_, err = fmt.Fprintln(s.out, string(content))
				return err
			})
		},
	}
}

func newNotesAddCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update notes from a JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("os.ReadFile(%s) > %w", file, err)
			}
			raws, err := datasync.DecodeNotes(data)
			if err != nil {
				return fmt.Errorf("datasync.DecodeNotes() > %w", err)
			}

			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				normalizer := notebook.NewNormalizer()
				for _, raw := range raws {
					n, warnings := normalizer.Normalize(raw)
					for _, w := range warnings {
						_, _ = fmt.Fprintf(s.out, "  [WARN]  %s\n", w)
					}
					saved, err := s.manager.SaveNote(ctx, n)
					if err != nil {
						return fmt.Errorf("SaveNote(%s) > %w", n.ID, err)
					}
					_, _ = fmt.Fprintf(s.out, "  [SAVE]  %s %s\n", saved.ID, saved.Chapter)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON or YAML file with a list of notes or an export document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newNotesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note and its audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				if err := s.manager.DeleteNote(ctx, args[0]); err != nil {
					return fmt.Errorf("DeleteNote(%s) > %w", args[0], err)
				}
				_, _ = fmt.Fprintf(s.out, "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
