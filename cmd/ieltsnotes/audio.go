package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

func newAudioCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Manage audio recordings of notes",
	}
	cmd.AddCommand(
		newAudioPutCommand(),
		newAudioGetCommand(),
		newAudioRmCommand(),
	)
	return cmd
}

func newAudioPutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put <noteID> <file>",
		Short: "Store a recording for a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, file := args[0], args[1]
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("os.ReadFile(%s) > %w", file, err)
			}
			payload := toDataURL(file, content)

			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				n, err := s.manager.GetNote(ctx, noteID)
				if err != nil {
					return fmt.Errorf("GetNote(%s) > %w", noteID, err)
				}
				if _, err := s.manager.SaveAudio(ctx, noteID, payload); err != nil {
					return fmt.Errorf("SaveAudio(%s) > %w", noteID, err)
				}
				if !n.UsesBlobStore() {
					n.SetAudioSentinel()
					if _, err := s.manager.SaveNote(ctx, n); err != nil {
						return fmt.Errorf("SaveNote(%s) > %w", noteID, err)
					}
				}
				_, _ = fmt.Fprintf(s.out, "  [AUDIO]  %s\n", noteID)
				return nil
			})
		},
	}
}

func newAudioGetCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <noteID>",
		Short: "Print the recording of a note as a data URL or write it to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID := args[0]
			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				payload, found := s.manager.GetAudio(ctx, noteID)
				if !found {
					return fmt.Errorf("no audio for note %s", noteID)
				}
				if output == "" {
					_, err := fmt.Fprintln(s.out, payload)
					return err
				}
				content, err := fromDataURL(payload)
				if err != nil {
					return fmt.Errorf("fromDataURL() > %w", err)
				}
				if err := os.WriteFile(output, content, 0644); err != nil {
					return fmt.Errorf("os.WriteFile(%s) > %w", output, err)
				}
				_, _ = fmt.Fprintf(s.out, "Wrote %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write the decoded recording to")
	return cmd
}

func newAudioRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <noteID>",
		Short: "Delete the recording of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID := args[0]
			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				if err := s.manager.DeleteAudio(ctx, noteID); err != nil {
					return fmt.Errorf("DeleteAudio(%s) > %w", noteID, err)
				}
				n, err := s.manager.GetNote(ctx, noteID)
				if errors.Is(err, notebook.ErrNoteNotFound) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("GetNote(%s) > %w", noteID, err)
				}
				if n.UsesBlobStore() {
					n.AudioData = nil
					if _, err := s.manager.SaveNote(ctx, n); err != nil {
						return fmt.Errorf("SaveNote(%s) > %w", noteID, err)
					}
				}
				_, _ = fmt.Fprintf(s.out, "Deleted audio of %s\n", noteID)
				return nil
			})
		},
	}
}

// toDataURL keeps files that already hold a data URL as they are.
func toDataURL(file string, content []byte) string {
	if text := strings.TrimSpace(string(content)); strings.HasPrefix(text, "data:") {
		return text
	}
	mimeType := mime.TypeByExtension(filepath.Ext(file))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content)
}

func fromDataURL(payload string) ([]byte, error) {
	header, data, ok := strings.Cut(payload, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return nil, fmt.Errorf("audio is not a data URL")
	}
	if strings.HasSuffix(header, ";base64") {
		return base64.StdEncoding.DecodeString(data)
	}
	return []byte(data), nil
}
