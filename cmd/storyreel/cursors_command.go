package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/musicsync"
)

func newCursorsCommand(ctx *commandContext) *cobra.Command {
	cursorsCmd := &cobra.Command{
		Use:   "cursors",
		Short: "Inspect and edit stored music cursors",
	}

	cursorsCmd.AddCommand(newCursorsListCommand(ctx))
	cursorsCmd.AddCommand(newCursorsSetCommand(ctx))
	cursorsCmd.AddCommand(newCursorsResetCommand(ctx))

	return cursorsCmd
}

func newCursorsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the music position stored for each video name",
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := ctx.ensureMedia()
			if err != nil {
				return err
			}
			entries, err := media.Cursors.Entries(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				cursors := make([]models.MusicCursorResponse, 0, len(entries))
				for _, e := range entries {
					cursors = append(cursors, models.MusicCursorResponse{Video: e.Video, LastMusicStart: e.Cursor.LastMusicStart})
				}
				return writeJSON(cmd, cursors)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No cursors in %s\n", media.Cursors.Path())
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Video, fmt.Sprintf("%.3f", e.Cursor.LastMusicStart)})
			}
			fmt.Fprintln(out, renderTable([]string{"Video", "Last music start"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print cursors as JSON")
	return cmd
}

func newCursorsSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <video> <seconds>",
		Short: "Set the music position for a video name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseFloat(args[1], 64)
			if err != nil || seconds < 0 {
				return fmt.Errorf("invalid position %q: must be a non-negative number of seconds", args[1])
			}
			media, err := ctx.ensureMedia()
			if err != nil {
				return err
			}
			key := musicsync.Key(args[0])
			if err := media.Cursors.Set(cmd.Context(), key, musicsync.Cursor{LastMusicStart: seconds}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cursor %s set to %.3f\n", key, seconds)
			return nil
		},
	}
}

func newCursorsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <video>",
		Short: "Forget the music position so the next video starts the track from zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			media, err := ctx.ensureMedia()
			if err != nil {
				return err
			}
			key := musicsync.Key(args[0])
			if err := media.Cursors.Remove(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cursor %s removed\n", key)
			return nil
		},
	}
}
