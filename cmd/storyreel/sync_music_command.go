package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobarin/storyreel/internal/config"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/musicsync"
)

func newSyncMusicCommand(ctx *commandContext) *cobra.Command {
	var (
		output    string
		musicPath string
		channel   string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "sync-music <video>",
		Short: "Mix background music under a video, continuing from the stored cursor",
		Long: `Mixes the background track under <video>. The track resumes where the
previous video with the same file name stopped, and the cursor is advanced
by this video's duration once the mix succeeds. On failure the video is left
as it was and the cursor is not moved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			video := args[0]
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

			if musicPath == "" {
				musicPath = cfg.MusicPathFor(mode.Name)
			}
			if output == "" {
				output = filepath.Join(filepath.Dir(video), "with_music", filepath.Base(video))
			}

			result, err := media.Music.WithMusic(musicPath).SyncWithResult(cmd.Context(), video, output)
			if err != nil {
				return fmt.Errorf("%w (%s left unchanged)", err, video)
			}
			if jsonOut {
				return writeJSON(cmd, result)
			}
			printSyncResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: <video dir>/with_music/<video name>)")
	cmd.Flags().StringVar(&musicPath, "music", "", "Background track (default: the channel's configured track)")
	cmd.Flags().StringVar(&channel, "channel", models.ModeDefault, "Channel whose track is used ("+strings.Join(models.ChannelModeNames(), ", ")+")")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")

	return cmd
}

func printSyncResult(cmd *cobra.Command, result *musicsync.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", result.OutputPath)
	fmt.Fprintf(out, "Cursor %s: %.3f -> %.3f (trim offset %.3f, video %.3fs)\n",
		result.Key, result.MusicStart, result.MusicEnd, result.Offset, result.Duration)
}
