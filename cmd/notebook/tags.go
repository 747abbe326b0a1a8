package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/model"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage tags and attach them to notes",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		list, err := a.Tags.FetchAll(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No tags.")
			return nil
		}
		for _, t := range list {
			fmt.Fprintf(out, "%s  #%s  %s\n", colorize(colorDim, strconv.FormatInt(t.ID, 10)), t.Name, colorize(colorDim, t.Color))
		}
		return nil
	}),
}

var tagsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		color, _ := cmd.Flags().GetString("color")
		t, err := a.Tags.Create(cmd.Context(), model.TagInput{Name: args[0], Color: color})
		if err != nil {
			return err
		}
		printSuccess("Created tag #%s (%d)", t.Name, t.ID)
		return nil
	}),
}

var tagsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a tag on every note that carries it",
	Args:  cobra.ExactArgs(2),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		t, err := a.Tags.Update(cmd.Context(), id, model.TagPatch{Name: &args[1]})
		if err != nil {
			return err
		}
		printSuccess("Renamed tag %d to #%s", t.ID, t.Name)
		return nil
	}),
}

var tagsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a tag and strip it from notes",
	Args:  cobra.ExactArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if _, ok := a.Tags.Get(id); !ok {
			return fmt.Errorf("tag %d: %w", id, model.ErrNotFound)
		}
		if err := a.Tags.Delete(cmd.Context(), id); err != nil {
			return err
		}
		printSuccess("Deleted tag %d", id)
		return nil
	}),
}

var tagsLinkCmd = &cobra.Command{
	Use:   "link <note> <tag-id>",
	Short: "Attach a tag to a note",
	Args:  cobra.ExactArgs(2),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		n, tagID, err := noteAndTag(a, args)
		if err != nil {
			return err
		}
		unlink, _ := cmd.Flags().GetBool("remove")
		if unlink {
			err = a.Tags.RemoveFromNote(cmd.Context(), n.ID, tagID)
		} else {
			err = a.Tags.AddToNote(cmd.Context(), n.ID, tagID)
		}
		if err != nil {
			return err
		}
		printSuccess("Note %s updated", shortID(n.ID))
		return nil
	}),
}

func init() {
	tagsAddCmd.Flags().String("color", "", "hex color (default "+model.DefaultTagColor+")")
	tagsLinkCmd.Flags().Bool("remove", false, "detach the tag instead")

	tagsCmd.AddCommand(tagsListCmd)
	tagsCmd.AddCommand(tagsAddCmd)
	tagsCmd.AddCommand(tagsRenameCmd)
	tagsCmd.AddCommand(tagsRmCmd)
	tagsCmd.AddCommand(tagsLinkCmd)
}

func noteAndTag(a *app.App, args []string) (model.Note, int64, error) {
	n, err := findNote(a, args[0])
	if err != nil {
		return model.Note{}, 0, err
	}
	id, err := parseID(args[1])
	if err != nil {
		return model.Note{}, 0, err
	}
	return n, id, nil
}
