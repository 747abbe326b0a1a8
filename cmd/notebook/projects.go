package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/model"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects and their boards",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		all, _ := cmd.Flags().GetBool("all")
		list, err := a.Projects.FetchAll(cmd.Context())
		if err != nil {
			return err
		}
		if !all {
			list = a.Projects.Active()
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No projects.")
			return nil
		}
		for _, p := range list {
			name := colorize(colorBold, p.Name)
			if p.Archived {
				name += colorize(colorDim, " (archived)")
			}
			fmt.Fprintf(out, "%s  %s\n", colorize(colorDim, strconv.FormatInt(p.ID, 10)), name)
			if p.Description != "" {
				fmt.Fprintf(out, "    %s\n", p.Description)
			}
		}
		return nil
	}),
}

var projectsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.MinimumNArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		desc, _ := cmd.Flags().GetString("description")
		color, _ := cmd.Flags().GetString("color")
		p, err := a.Projects.Create(cmd.Context(), model.ProjectInput{
			Name:        strings.Join(args, " "),
			Description: desc,
			Color:       color,
		})
		if err != nil {
			return err
		}
		printSuccess("Created project %d", p.ID)
		return nil
	}),
}

var projectsArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a project (--undo to restore it)",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		undo, _ := cmd.Flags().GetBool("undo")
		if undo {
			_, err = a.Projects.Unarchive(cmd.Context(), id)
		} else {
			_, err = a.Projects.Archive(cmd.Context(), id)
		}
		if err != nil {
			return err
		}
		printSuccess("Project %d updated", id)
		return nil
	}),
}

var projectsStatsCmd = &cobra.Command{
	Use:   "stats <id>",
	Short: "Count a project's notes, tasks and pomodoro sessions",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		p, ok := a.Projects.Get(id)
		if !ok {
			return fmt.Errorf("project %d: %w", id, model.ErrNotFound)
		}
		st, err := a.Projects.LoadStats(cmd.Context(), id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, colorize(colorBold, p.Name))
		fmt.Fprintf(out, "  Notes:             %d\n", st.TotalNotes)
		fmt.Fprintf(out, "  Tasks:             %d (%d completed)\n", st.TotalTasks, st.CompletedTasks)
		fmt.Fprintf(out, "  Pomodoro sessions: %d\n", st.TotalPomodoroSessions)
		return nil
	}),
}

var projectsBoardCmd = &cobra.Command{
	Use:   "board <id>",
	Short: "Show the kanban board of a project",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		p, ok := a.Projects.Get(id)
		if !ok {
			return fmt.Errorf("project %d: %w", id, model.ErrNotFound)
		}
		fmt.Fprintln(cmd.OutOrStdout(), colorize(colorBold, p.Name))
		fmt.Fprint(cmd.OutOrStdout(), renderBoard(a.Projects.FetchColumns(id)))
		return nil
	}),
}

func init() {
	projectsListCmd.Flags().Bool("all", false, "include archived projects")
	projectsAddCmd.Flags().String("description", "", "project description")
	projectsAddCmd.Flags().String("color", "", "hex color (default "+model.DefaultProjectColor+")")
	projectsArchiveCmd.Flags().Bool("undo", false, "unarchive instead")

	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsAddCmd)
	projectsCmd.AddCommand(projectsArchiveCmd)
	projectsCmd.AddCommand(projectsStatsCmd)
	projectsCmd.AddCommand(projectsBoardCmd)
}
