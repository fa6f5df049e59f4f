package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobarin/storyreel/internal/config"
	"github.com/bobarin/storyreel/internal/editor"
	"github.com/bobarin/storyreel/internal/models"
)

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	var (
		imageDir string
		voiceDir string
		channel  string
		output   string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble existing images and voice lines into a video",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := models.LookupChannelMode(channel)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig(config.PurposeMedia)
			if err != nil {
				return err
			}
			media, err := ctx.ensureMedia()
			if err != nil {
				return err
			}
			if output == "" {
				output = filepath.Join(cfg.OutputDir, mode.OutputName)
			}

			result, err := media.Assembler.Assemble(cmd.Context(), editor.AssembleRequest{
				ImageDir:   imageDir,
				VoiceDir:   voiceDir,
				Mode:       mode,
				OutputPath: output,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, result)
			}
			printTimeline(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&imageDir, "images", "images", "Directory of images, in creation order")
	cmd.Flags().StringVar(&voiceDir, "voices", "voices", "Directory of voice lines, in creation order")
	cmd.Flags().StringVar(&channel, "channel", models.ModeDefault, "Channel mode ("+strings.Join(models.ChannelModeNames(), ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: OUTPUT_DIR/<channel output name>)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the timeline as JSON")

	return cmd
}

func printTimeline(out io.Writer, result *editor.Result) {
	rows := make([][]string, 0, len(result.Timeline))
	var at float64
	for _, e := range result.Timeline {
		line := "-"
		if e.Kind == editor.EntryLine {
			line = fmt.Sprintf("%d", e.Line+1)
		}
		rows = append(rows, []string{
			e.Kind,
			line,
			fmt.Sprintf("%.3f", at),
			fmt.Sprintf("%.3f", e.Duration),
		})
		at += e.Duration
	}
	fmt.Fprintln(out, renderTable([]string{"Clip", "Line", "Start", "Duration"}, rows, []columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
	fmt.Fprintf(out, "%s: %d lines, %.3fs (%s)\n", result.OutputPath, result.Lines, result.Duration, result.Mode)
}
