package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/model"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage markdown notes",
}

var notesListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List notes, optionally filtered by a search query",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		tag, _ := cmd.Flags().GetString("tag")

		found, err := a.Notes.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		shown := 0
		for _, n := range found {
			if tag != "" && !containsFold(n.Tags, tag) {
				continue
			}
			shown++
			fmt.Fprintf(out, "%s  %s  %s\n", colorize(colorDim, shortID(n.ID)), colorize(colorBold, n.Title), colorize(colorDim, ago(n.UpdatedAt)))
			if len(n.Tags) > 0 {
				fmt.Fprintf(out, "    #%s\n", strings.Join(n.Tags, " #"))
			}
		}
		if shown == 0 {
			fmt.Fprintln(out, "No notes found.")
		}
		return nil
	}),
}

var notesAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a note",
	Long: `Create a note.

Examples:
  notebook notes add "Weekly plan" --content "- ship the importer" --tags work,planning
  notebook notes add "Reading list" --project 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		content, _ := cmd.Flags().GetString("content")
		project, _ := cmd.Flags().GetString("project")
		tagsStr, _ := cmd.Flags().GetString("tags")

		in := model.NoteInput{
			Title:   strings.Join(args, " "),
			Content: content,
			Tags:    splitTags(tagsStr),
		}
		if project != "" {
			in.ProjectID = &project
		}
		n, err := a.Notes.Create(cmd.Context(), in)
		if err != nil {
			return err
		}
		printSuccess("Created note %s", n.ID)
		return nil
	}),
}

var notesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Render a note",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		n, err := findNote(a, args[0])
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetBool("raw")
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, colorize(colorBold, n.Title))
		fmt.Fprintln(out, colorize(colorDim, fmt.Sprintf("%s · updated %s", n.ID, ago(n.UpdatedAt))))
		if len(n.Tags) > 0 {
			fmt.Fprintf(out, "#%s\n", strings.Join(n.Tags, " #"))
		}
		if raw {
			fmt.Fprintln(out, n.Content)
			return nil
		}
		body, err := renderMarkdown(n.Content, 80)
		if err != nil {
			return err
		}
		fmt.Fprint(out, body)
		return nil
	}),
}

var notesEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a note's title, content or tags",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		n, err := findNote(a, args[0])
		if err != nil {
			return err
		}
		var p model.NotePatch
		if cmd.Flags().Changed("title") {
			v, _ := cmd.Flags().GetString("title")
			p.Title = &v
		}
		if cmd.Flags().Changed("content") {
			v, _ := cmd.Flags().GetString("content")
			p.Content = &v
		}
		if cmd.Flags().Changed("tags") {
			v, _ := cmd.Flags().GetString("tags")
			tags := splitTags(v)
			p.Tags = &tags
		}
		if _, err := a.Notes.Update(cmd.Context(), n.ID, p); err != nil {
			return err
		}
		printSuccess("Updated note %s", n.ID)
		return nil
	}),
}

var notesRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		n, err := findNote(a, args[0])
		if err != nil {
			return err
		}
		if err := a.Notes.Delete(cmd.Context(), n.ID); err != nil {
			return err
		}
		printSuccess("Deleted note %s", n.ID)
		return nil
	}),
}

func init() {
	notesListCmd.Flags().String("tag", "", "only notes carrying this tag")
	notesAddCmd.Flags().String("content", "", "markdown body")
	notesAddCmd.Flags().String("tags", "", "comma-separated tags")
	notesAddCmd.Flags().String("project", "", "project ID")
	notesShowCmd.Flags().Bool("raw", false, "print markdown source")
	notesEditCmd.Flags().String("title", "", "new title")
	notesEditCmd.Flags().String("content", "", "new markdown body")
	notesEditCmd.Flags().String("tags", "", "replace tags (comma-separated)")

	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesAddCmd)
	notesCmd.AddCommand(notesShowCmd)
	notesCmd.AddCommand(notesEditCmd)
	notesCmd.AddCommand(notesRmCmd)
}

// findNote resolves a full note ID or a unique prefix of one.
func findNote(a *app.App, ref string) (model.Note, error) {
	var match []model.Note
	for _, n := range a.Notes.State().Notes {
		if n.ID == ref {
			return n, nil
		}
		if strings.HasPrefix(n.ID, ref) {
			match = append(match, n)
		}
	}
	switch len(match) {
	case 0:
		return model.Note{}, fmt.Errorf("note %s: %w", ref, model.ErrNotFound)
	case 1:
		return match[0], nil
	}
	return model.Note{}, fmt.Errorf("note prefix %q is ambiguous (%d matches)", ref, len(match))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
