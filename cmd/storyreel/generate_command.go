package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobarin/storyreel/internal/app"
	"github.com/bobarin/storyreel/internal/config"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/worker"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		channel     string
		musicPath   string
		contentFile string
		scriptFile  string
		outputDir   string
		captions    bool
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "generate <title>",
		Short: "Write, voice, illustrate and assemble a video for a title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(config.PurposeGenerate)
			if err != nil {
				return err
			}
			media, err := ctx.ensureMedia()
			if err != nil {
				return err
			}
			gen, err := app.NewGenerator(cfg, media, nil)
			if err != nil {
				return err
			}

			req := worker.RunRequest{
				Title:     args[0],
				Channel:   channel,
				Captions:  captions,
				MusicPath: musicPath,
				OutputDir: outputDir,
			}
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("read content: %w", err)
				}
				req.Content = string(data)
			}
			if scriptFile != "" {
				script, err := readScriptFile(scriptFile)
				if err != nil {
					return err
				}
				req.VoiceScripts = script.VoiceScripts
				req.ImagePrompts = script.ImagePrompts
			}

			result, err := gen.Run(cmd.Context(), req, &progressPrinter{out: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, result)
			}
			printRunResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", models.ModeDefault, "Channel mode ("+strings.Join(models.ChannelModeNames(), ", ")+")")
	cmd.Flags().StringVar(&musicPath, "music", "", "Background track (default: the channel's configured track)")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "Use this narrative instead of generating one")
	cmd.Flags().StringVar(&scriptFile, "script", "", "JSON file with voice_scripts and image_prompts; skips the language model")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory (default: OUTPUT_DIR)")
	cmd.Flags().BoolVar(&captions, "captions", false, "Burn in word-timed captions")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the run result as JSON")

	return cmd
}

// readScriptFile loads a script in the same shape the language model returns.
func readScriptFile(path string) (*services.Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var script services.Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, services.Wrap(services.ErrValidation, "script", "load", path, err)
	}
	return &script, nil
}

type progressPrinter struct {
	out io.Writer
}

func (p *progressPrinter) Status(ctx context.Context, status models.RunStatus) {
	fmt.Fprintf(p.out, "==> %s\n", status)
}

func (p *progressPrinter) Script(ctx context.Context, content string, script *services.Script) {
	fmt.Fprintf(p.out, "    %d voice lines, %d image prompts\n", len(script.VoiceScripts), len(script.ImagePrompts))
}

func printRunResult(out io.Writer, result *worker.RunResult) {
	fmt.Fprintf(out, "Run:      %s (%s)\n", result.RunID, result.Mode)
	fmt.Fprintf(out, "Video:    %s\n", result.VideoPath)
	if result.Assembly != nil {
		fmt.Fprintf(out, "Duration: %.2fs over %d lines\n", result.Assembly.Duration, result.Assembly.Lines)
	}
	if result.Music != nil {
		fmt.Fprintf(out, "Music:    %s %.2fs -> %.2fs\n", result.MusicPath, result.Music.MusicStart, result.Music.MusicEnd)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "Warning:  %s\n", w)
	}
}
