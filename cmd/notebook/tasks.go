package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/tasks"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in position order",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		filter, _ := cmd.Flags().GetString("filter")
		if err := a.Tasks.SetFilter(tasks.Filter(filter)); err != nil {
			return err
		}
		if _, err := a.Tasks.FetchAll(cmd.Context()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		visible := a.Tasks.Visible()
		if len(visible) == 0 {
			fmt.Fprintln(out, "No tasks.")
			return nil
		}
		for _, t := range visible {
			box := "[ ]"
			if t.Completed {
				box = colorize(colorGreen, "[x]")
			}
			line := fmt.Sprintf("%s %s %s %s", box, priorityMark(t.Priority), colorize(colorDim, strconv.FormatInt(t.ID, 10)), t.Title)
			if t.DueDate != "" {
				line += colorize(colorDim, " due "+t.DueDate)
			}
			fmt.Fprintln(out, line)
		}
		return nil
	}),
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		desc, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetString("priority")
		due, _ := cmd.Flags().GetString("due")

		in := model.TaskInput{
			Title:       strings.Join(args, " "),
			Description: desc,
			Priority:    model.Priority(priority),
			DueDate:     due,
		}
		if cmd.Flags().Changed("project") {
			v, _ := cmd.Flags().GetInt64("project")
			in.ProjectID = &v
		}
		if cmd.Flags().Changed("parent") {
			v, _ := cmd.Flags().GetInt64("parent")
			in.ParentTaskID = &v
		}
		t, err := a.Tasks.Create(cmd.Context(), in)
		if err != nil {
			return err
		}
		printSuccess("Created task %d", t.ID)
		return nil
	}),
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Toggle a task's completion",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		t, err := a.Tasks.ToggleComplete(cmd.Context(), id)
		if err != nil {
			return err
		}
		if t.Completed {
			printSuccess("Completed %q", t.Title)
		} else {
			printSuccess("Reopened %q", t.Title)
		}
		return nil
	}),
}

var tasksMoveCmd = &cobra.Command{
	Use:   "move <id> <position>",
	Short: "Move a task to a 1-based position",
	Args:  cobra.ExactArgs(2),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		pos, err := strconv.Atoi(args[1])
		if err != nil || pos < 1 {
			return fmt.Errorf("invalid position %q", args[1])
		}
		if err := a.Tasks.Move(cmd.Context(), id, pos-1); err != nil {
			return err
		}
		printSuccess("Moved task %d", id)
		return nil
	}),
}

var tasksRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if _, ok := a.Tasks.Get(id); !ok {
			return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		if err := a.Tasks.Delete(cmd.Context(), id); err != nil {
			return err
		}
		printSuccess("Deleted task %d", id)
		return nil
	}),
}

func init() {
	tasksListCmd.Flags().String("filter", string(tasks.FilterAll), "all, pending or completed")
	tasksAddCmd.Flags().String("description", "", "task details")
	tasksAddCmd.Flags().String("priority", "", "low, medium or high")
	tasksAddCmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	tasksAddCmd.Flags().Int64("project", 0, "project ID")
	tasksAddCmd.Flags().Int64("parent", 0, "parent task ID")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksAddCmd)
	tasksCmd.AddCommand(tasksDoneCmd)
	tasksCmd.AddCommand(tasksMoveCmd)
	tasksCmd.AddCommand(tasksRmCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
