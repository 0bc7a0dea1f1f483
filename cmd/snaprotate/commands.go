package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raoulx24/snaprotate/internal/catalog"
	"github.com/raoulx24/snaprotate/internal/daemon"
	"github.com/raoulx24/snaprotate/internal/orchestrator"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		Long: `Run schedules, the config file watcher and the optional HTTP server
until SIGINT or SIGTERM. SIGHUP reloads the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup("run")
			if err != nil {
				return err
			}

			d, err := daemon.New(configFile, cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Hot reload on SIGHUP
			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGHUP)
				defer signal.Stop(sigCh)

				for {
					select {
					case <-ctx.Done():
						return
					case <-sigCh:
						if err := d.Reload(ctx); err != nil {
							log.Error("config reload failed", "error", err)
						}
					}
				}
			}()

			err = d.Serve(ctx)
			log.Info("exit complete")
			return err
		},
	}
}

func snapshotCmd() *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "snapshot <set>",
		Short: "Take one snapshot of a set",
		Long: `Take one snapshot of a set, hard-linked against its latest complete
snapshot.

Examples:
  snaprotate snapshot host1           # snapshot only
  snaprotate snapshot host1 --prune   # then apply retention`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup("snapshot")
			if err != nil {
				return err
			}
			set, err := lookupSet(cfg, args[0])
			if err != nil {
				return err
			}

			comp, err := daemon.Build(cfg, log)
			if err != nil {
				return err
			}
			defer comp.Catalog.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			id, err := comp.Orchestrator.CreateSnapshot(ctx, set.BackupSet(), comp.Executor)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)

			if !prune {
				return nil
			}
			policy, _ := comp.Retention.Policy(set.Name)
			results, err := comp.Orchestrator.ApplyRetention(ctx, set.BackupSet(), policy, comp.Executor)
			if err != nil {
				return err
			}
			return deletionErrors(results)
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "Apply retention after the snapshot")
	return cmd
}

func pruneCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune <set>",
		Short: "Apply the retention policy of a set",
		Long: `Delete the snapshots the retention policy selects, oldest first.

Examples:
  snaprotate prune host1             # delete
  snaprotate prune host1 --dry-run   # only print what would go`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup("prune")
			if err != nil {
				return err
			}
			set, err := lookupSet(cfg, args[0])
			if err != nil {
				return err
			}

			comp, err := daemon.Build(cfg, log)
			if err != nil {
				return err
			}
			defer comp.Catalog.Close()

			out := cmd.OutOrStdout()
			if dryRun {
				ids, err := comp.Retention.Select(set.Name, comp.Catalog.Snapshots(set.Name), time.Now())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintf(out, "would delete %s\n", id)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			policy, _ := comp.Retention.Policy(set.Name)
			results, err := comp.Orchestrator.ApplyRetention(ctx, set.BackupSet(), policy, comp.Executor)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Err == nil {
					fmt.Fprintf(out, "deleted %s\n", r.ID)
				} else {
					fmt.Fprintf(out, "kept %s: %v\n", r.ID, r.Err)
				}
			}
			return deletionErrors(results)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the selection without deleting")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <set>",
		Short: "List the snapshots of a set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup("list")
			if err != nil {
				return err
			}
			set, err := lookupSet(cfg, args[0])
			if err != nil {
				return err
			}

			cat, err := catalog.OpenConfigured(cfg.Catalog, nil)
			if err != nil {
				return err
			}
			defer cat.Close()
			log.Debug("listing snapshots", "set", set.Name)

			latest, _ := cat.Latest(set.Name)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tNEW DATA\tBASIS\tCREATED\t")
			for s := range cat.List(set.Name) {
				size := "-"
				if s.SizeBytes != nil {
					size = humanize.IBytes(uint64(*s.SizeBytes))
				}
				basis := string(s.Basis)
				if basis == "" {
					basis = "-"
				}
				marker := ""
				if s.ID == latest {
					marker = "(latest)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Status, size, basis, humanize.Time(s.CreatedAt), marker)
			}
			return tw.Flush()
		},
	}
}

func rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <set>",
		Short: "Rebuild the catalog of a set from its snapshot directories",
		Long: `Seed an empty catalog from the snapshot directories under the set's
target, after losing the catalog file or switching backends. Every
directory named like a snapshot id is taken as complete.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup("rebuild")
			if err != nil {
				return err
			}
			set, err := lookupSet(cfg, args[0])
			if err != nil {
				return err
			}

			cat, err := catalog.OpenConfigured(cfg.Catalog, nil)
			if err != nil {
				return err
			}
			defer cat.Close()

			ids, err := catalog.Rebuild(cat, set.BackupSet(), nil)
			if err != nil {
				return err
			}
			log.Info("catalog rebuilt", "set", set.Name, "snapshots", len(ids))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d snapshots\n", len(ids))
			return nil
		},
	}
}

func deletionErrors(results []orchestrator.DeletionResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
