package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobarin/storyreel/internal/models"
)

func newModesCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "modes",
		Short: "List channel modes",
		RunE: func(cmd *cobra.Command, args []string) error {
			modes := models.ChannelModes()
			if jsonOut {
				return writeJSON(cmd, modes)
			}

			rows := make([][]string, 0, len(modes))
			for _, m := range modes {
				effects := make([]string, len(m.Effects))
				for i, e := range m.Effects {
					effects[i] = string(e)
				}
				rows = append(rows, []string{
					m.Name,
					fmt.Sprintf("%d", m.ImagesPerLine),
					fmt.Sprintf("%dx%d", m.FrameWidth, m.FrameHeight),
					strings.Join(effects, ", "),
					m.OutputName,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Mode", "Images/line", "Frame", "Effects", "Output"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print modes as JSON")
	return cmd
}
