package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/at-ishikawa/ieltsnotes/internal/cli"
	"github.com/at-ishikawa/ieltsnotes/internal/datasync"
)

// formatFlag validates --format while the flags are parsed.
type formatFlag struct {
	format datasync.Format
}

var _ pflag.Value = (*formatFlag)(nil)

func (f *formatFlag) String() string {
	return string(f.format)
}

func (f *formatFlag) Set(v string) error {
	format, err := datasync.ParseFormat(v)
	if err != nil {
		return err
	}
	f.format = format
	return nil
}

func (f *formatFlag) Type() string {
	return "format"
}

func newExportCommand() *cobra.Command {
	format := formatFlag{format: datasync.FormatJSON}
	var includeAudio bool
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every note to a JSON or YAML document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				w, closeOutput, err := createOutput(output, s.out)
				if err != nil {
					return err
				}
				count, err := s.manager.Exporter().Export(ctx, w, datasync.ExportOptions{Format: format.format, IncludeAudio: includeAudio})
				if closeErr := closeOutput(); err == nil {
					err = closeErr
				}
				if err != nil {
					return fmt.Errorf("Exporter.Export() > %w", err)
				}
				if output != "" {
					_, _ = fmt.Fprintf(s.out, "Exported %d notes to %s\n", count, output)
				}
				return nil
			})
		},
	}
	cmd.Flags().VarP(&format, "format", "f", "json or yaml")
	cmd.Flags().BoolVar(&includeAudio, "include-audio", false, "embed recordings stored in the audio database")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty")

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of export documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return datasync.ExportSchema(cmd.OutOrStdout())
		},
	})
	return cmd
}

func newImportCommand() *cobra.Command {
	var replace bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import notes from an export document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("os.Open(%s) > %w", args[0], err)
			}
			defer func() {
				_ = file.Close()
			}()

			return runWithStorage(cmd, initStorage, func(ctx context.Context, s *session) error {
				result, err := s.manager.Importer(s.out).Import(ctx, file, datasync.ImportOptions{
					Replace: replace,
					DryRun:  dryRun,
				})
				if err != nil {
					return fmt.Errorf("Importer.Import() > %w", err)
				}
				cli.PrintImportResult(s.out, *result, dryRun)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "replace every stored note after taking a backup")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be imported without writing")
	return cmd
}
