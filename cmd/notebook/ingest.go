package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Import markdown, text, HTML or PDF files as notes",
	Long: `Import markdown, text, HTML or PDF files as notes.

Examples:
  notebook ingest ./meeting.md --tags work
  notebook ingest ./paper.pdf ./article.html --project 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		tagsStr, _ := cmd.Flags().GetString("tags")
		project, _ := cmd.Flags().GetString("project")

		opts := ingest.Options{Tags: splitTags(tagsStr)}
		if project != "" {
			opts.ProjectID = &project
		}

		im := ingest.NewImporter(a.Notes)
		failed := 0
		for _, path := range args {
			n, err := im.ImportFile(cmd.Context(), path, opts)
			if err != nil {
				printError("%s: %v", path, err)
				failed++
				continue
			}
			printSuccess("%s → note %s %q", path, shortID(n.ID), n.Title)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed to import", failed, len(args))
		}
		return nil
	}),
}

func init() {
	ingestCmd.Flags().String("tags", "", "comma-separated tags for every imported note")
	ingestCmd.Flags().String("project", "", "project ID")
}
