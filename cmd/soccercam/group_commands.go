package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mblakley/soccer-cam/internal/api"
	"github.com/mblakley/soccer-cam/internal/groupaccess"
)

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	var stages []string
	var failedOnly bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "groups",
		Aliases: []string{"ls"},
		Short:   "List recording groups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withGroups(func(access groupaccess.Access) error {
				groups, err := access.List(cmd.Context(), stages)
				if err != nil {
					return err
				}
				if failedOnly {
					groups = filterFailed(groups)
				}
				groups = api.SortGroupsNewestFirst(groups)
				if asJSON {
					return writeJSON(cmd, api.GroupListResponse{Groups: groups})
				}
				out := cmd.OutOrStdout()
				if !access.Live() {
					fmt.Fprintln(out, "Daemon not running; showing stored state")
				}
				if len(groups) == 0 {
					fmt.Fprintln(out, "No recording groups")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"Group", "Stage", "Recorded", "Segments", "Status"},
					buildGroupRows(groups),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&stages, "stage", "s", nil, "Only list groups at these stages (repeatable)")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only list groups holding an error")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <group>",
		Short: "Show one recording group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withGroups(func(access groupaccess.Access) error {
				resp, err := access.Describe(cmd.Context(), args[0])
				if err != nil {
					return groupError(err, args[0])
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				renderGroupDetail(cmd.OutOrStdout(), resp, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <group>",
		Short: "Clear a group's error so it resumes at the failed stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withGroups(func(access groupaccess.Access) error {
				resp, err := access.Reset(cmd.Context(), args[0])
				if err != nil {
					return groupError(err, args[0])
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Group %s reset; resuming at %s\n", resp.Group.ID, resp.Group.Stage)
				if !access.Live() {
					fmt.Fprintln(out, "The daemon picks it up on its next start")
				}
				return nil
			})
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history [group]",
		Short: "Show recorded stage transitions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			id := ""
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			return ctx.withGroups(func(access groupaccess.Access) error {
				entries, err := access.History(cmd.Context(), id, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.HistoryResponse{Entries: entries})
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No history recorded")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"When", "Group", "Event", "Transition", "Detail"},
					buildHistoryRows(entries),
					nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func groupError(err error, id string) error {
	if errors.Is(err, api.ErrGroupNotFound) || strings.Contains(err.Error(), api.ErrGroupNotFound.Error()) {
		return fmt.Errorf("group %s not found (see `soccercam groups`)", strings.TrimSpace(id))
	}
	return err
}

func filterFailed(groups []api.Group) []api.Group {
	out := groups[:0]
	for _, g := range groups {
		if g.Error != nil {
			out = append(out, g)
		}
	}
	return out
}
