package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mblakley/soccer-cam/internal/groupaccess"
	"github.com/mblakley/soccer-cam/internal/matchinfo"
)

type matchInfoFlags struct {
	team     string
	opponent string
	location string
	start    string
	end      string
	duration string
}

func newMatchInfoCommand(ctx *commandContext) *cobra.Command {
	var flags matchInfoFlags
	cmd := &cobra.Command{
		Use:   "match-info <group>",
		Short: "Show or edit a group's match_info.ini",
		Long: "Without flags, prints the group's match info. With flags, writes the given\n" +
			"fields and keeps the rest. The daemon picks up the change on its next tick.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			err = ctx.withGroups(func(access groupaccess.Access) error {
				_, err := access.Describe(cmd.Context(), id)
				return err
			})
			if err != nil {
				return groupError(err, id)
			}

			dir := filepath.Join(cfg.Paths.StorageDir, id)
			info, exists, err := matchinfo.Load(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !anyMatchInfoFlag(cmd) {
				if !exists {
					fmt.Fprintf(out, "No match info yet for %s\n", id)
					return nil
				}
				printMatchInfo(cmd, dir, info)
				return nil
			}

			updated, err := applyMatchInfoFlags(cmd, info, flags)
			if err != nil {
				return err
			}
			if err := matchinfo.Save(dir, updated); err != nil {
				return err
			}
			fmt.Fprintf(out, "Updated %s\n", matchinfo.Path(dir))
			if missing := updated.Missing(); len(missing) > 0 {
				fmt.Fprintf(out, "Still missing: %s\n", strings.Join(missing, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.team, "team", "", "Your team's name")
	cmd.Flags().StringVar(&flags.opponent, "opponent", "", "Opponent team name")
	cmd.Flags().StringVar(&flags.location, "location", "", "Field or venue")
	cmd.Flags().StringVar(&flags.start, "start", "", "Game start offset into the recording (MM:SS or HH:MM:SS)")
	cmd.Flags().StringVar(&flags.end, "end", "", "Game end offset into the recording (MM:SS or HH:MM:SS)")
	cmd.Flags().StringVar(&flags.duration, "duration", "", "Game length in minutes when no end offset is given")
	return cmd
}

var matchInfoFlagNames = []string{"team", "opponent", "location", "start", "end", "duration"}

func anyMatchInfoFlag(cmd *cobra.Command) bool {
	for _, name := range matchInfoFlagNames {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// applyMatchInfoFlags overlays the flags the user set. Offsets are validated
// and normalized before anything is written.
func applyMatchInfoFlags(cmd *cobra.Command, info matchinfo.Info, flags matchInfoFlags) (matchinfo.Info, error) {
	changed := cmd.Flags().Changed
	if changed("team") {
		info.Team = strings.TrimSpace(flags.team)
	}
	if changed("opponent") {
		info.Opponent = strings.TrimSpace(flags.opponent)
	}
	if changed("location") {
		info.Location = strings.TrimSpace(flags.location)
	}
	if changed("start") {
		value, err := normalizeOffset(flags.start)
		if err != nil {
			return info, err
		}
		info.StartOffset = value
	}
	if changed("end") {
		value, err := normalizeOffset(flags.end)
		if err != nil {
			return info, err
		}
		info.EndOffset = value
	}
	if changed("duration") {
		info.TotalDuration = strings.TrimSpace(flags.duration)
		if _, err := info.GameLength(0); err != nil {
			return info, err
		}
	}
	if info.EndOffset != "" && info.StartOffset != "" {
		start, _ := matchinfo.ParseOffset(info.StartOffset)
		end, _ := matchinfo.ParseOffset(info.EndOffset)
		if end <= start {
			return info, fmt.Errorf("end offset %s must be after start offset %s", info.EndOffset, info.StartOffset)
		}
	}
	return info, nil
}

func normalizeOffset(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	d, err := matchinfo.ParseOffset(value)
	if err != nil {
		return "", err
	}
	return matchinfo.FormatOffset(d), nil
}

func printMatchInfo(cmd *cobra.Command, dir string, info matchinfo.Info) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, matchinfo.Path(dir))
	fmt.Fprint(out, renderFields([][2]string{
		{matchinfo.KeyTeam, info.Team},
		{matchinfo.KeyOpponent, info.Opponent},
		{matchinfo.KeyLocation, info.Location},
		{matchinfo.KeyStartOffset, info.StartOffset},
		{matchinfo.KeyEndOffset, info.EndOffset},
		{matchinfo.KeyTotalDuration, info.TotalDuration},
	}))
	if missing := info.Missing(); len(missing) > 0 {
		fmt.Fprintf(out, "Missing: %s\n", strings.Join(missing, ", "))
	}
}
