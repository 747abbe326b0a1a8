package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/backup"
	"github.com/kalambet/notebook/internal/config"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export and restore the whole notebook",
}

var backupExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a dated backup file",
	Long: `Write a dated backup file.

Without --output the file lands in backup.dir as
productivity_notebook_backup_<YYYY-MM-DD>.json. Use --output - for stdout.`,
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		output, _ := cmd.Flags().GetString("output")
		client, attached := serverClient(a)
		if output == "" && !attached {
			path, err := a.Download(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Backup written to %s", path)
			return nil
		}

		var (
			doc []byte
			err error
		)
		if attached {
			doc, err = client.exportBackup(cmd.Context())
		} else {
			doc, err = a.Export(cmd.Context())
		}
		if err != nil {
			return err
		}
		if output == "" {
			path, err := backup.Write(a.Config.BackupDir(), doc, a.Clock.Now())
			if err != nil {
				return err
			}
			printSuccess("Backup written to %s", path)
			return nil
		}
		if output == "-" {
			_, err = cmd.OutOrStdout().Write(append(doc, '\n'))
			return err
		}
		if err := os.WriteFile(output, doc, 0o644); err != nil {
			return fmt.Errorf("writing backup: %w", err)
		}
		printSuccess("Backup written to %s (%s)", output, humanize.Bytes(uint64(len(doc))))
		return nil
	}),
}

var backupImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the notebook with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("restoring replaces every notebook entry; pass --confirm to proceed")
		}
		doc, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading backup: %w", err)
		}
		return runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			restore := a.Restore
			if client, ok := serverClient(a); ok {
				restore = client.restoreBackup
			}
			if err := restore(cmd.Context(), doc); err != nil {
				return err
			}
			printSuccess("Restored %s", args[0])
			return nil
		})(cmd, args)
	},
}

var backupSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Show how much of the storage quota the notebook uses",
	RunE: runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		var used int
		if client, ok := serverClient(a); ok {
			if _, err := client.triggerSync(cmd.Context()); err != nil {
				return err
			}
			rep, err := client.fetchStorage(cmd.Context())
			if err != nil {
				return err
			}
			used = rep.SizeBytes
		} else {
			if err := a.Sync(cmd.Context()); err != nil {
				return err
			}
			used = a.KV.SizeInBytes()
		}
		quota := a.Config.Storage.QuotaBytes
		out := cmd.OutOrStdout()
		if quota > 0 {
			fmt.Fprintf(out, "%s of %s (%.1f%%)\n", humanize.Bytes(uint64(used)), humanize.Bytes(uint64(quota)), 100*float64(used)/float64(quota))
			return nil
		}
		fmt.Fprintln(out, humanize.Bytes(uint64(used)))
		return nil
	}),
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass over every store",
	Long: `Run one sync pass over every store.

When a server is running the pass runs inside it, so its in-memory
collections are the ones written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if client := newAPIClient(cfg); client.healthy(cmd.Context()) {
			rep, err := client.triggerSync(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Server synced %d stores", len(rep.Keys))
			return nil
		}
		return runWithApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := a.Refresh(cmd.Context()); err != nil {
				printWarning("refresh: %v", err)
			}
			if err := a.Sync(cmd.Context()); err != nil {
				return err
			}
			printSuccess("Synced %d stores", len(a.Registry.Keys()))
			return nil
		})(cmd, args)
	},
}

func init() {
	backupExportCmd.Flags().StringP("output", "o", "", "output file path, - for stdout")
	backupImportCmd.Flags().Bool("confirm", false, "confirm the restore")

	backupCmd.AddCommand(backupExportCmd)
	backupCmd.AddCommand(backupImportCmd)
	backupCmd.AddCommand(backupSizeCmd)
}
