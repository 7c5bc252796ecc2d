package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/TheGojiOG/notion-backup/internal/api"
	"github.com/TheGojiOG/notion-backup/internal/api/handlers"
	"github.com/TheGojiOG/notion-backup/internal/backup"
	"github.com/TheGojiOG/notion-backup/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	configPath string
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notion-backup",
		Short: "Mirror a Notion workspace into Google Drive",
		Long: `notion-backup lists every page shared with a Notion integration, rebuilds
the page hierarchy and writes it into a timestamped folder tree, one JSON
content snapshot per page.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML or TOML)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(versionCmd(), runCmd(), scheduleCmd(), historyCmd())

	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("notion-backup %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one backup now",
		Long: `Run one backup now. Failures on individual pages are reported and the
run continues; the command exits non-zero only when the run could not start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := os.Stdout
			if jsonOutput {
				out = os.Stderr
			}

			a, err := newApp(ctx, cfg, out)
			if err != nil {
				return err
			}
			defer a.Close()

			record, err := a.manager.Run(ctx, backup.TriggerManual)
			if record != nil && jsonOutput {
				printJSON(record)
			}
			return err
		},
	}
}

func scheduleCmd() *cobra.Command {
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run backups on a cron schedule",
		Long: `Run backups on a cron schedule until interrupted. When server.enabled is
set, the status API is served alongside the scheduler.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			if cronExpr != "" {
				cfg.Backup.Schedule = cronExpr
			}
			if cfg.Backup.Schedule == "" {
				return errors.New("no schedule configured: set backup.schedule, BACKUP_SCHEDULE or --cron")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, os.Stdout)
			if err != nil {
				return err
			}
			defer a.Close()

			runner, err := backup.NewScheduleRunner(a.manager, cfg.Backup.Schedule)
			if err != nil {
				return err
			}
			runner.Start(ctx)

			var server *http.Server
			if cfg.Server.Enabled {
				router := api.SetupRouter(cfg, handlers.NewRunHandler(ctx, a.manager, runner.NextRun))
				server = &http.Server{
					Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
					Handler:      router,
					ReadTimeout:  15 * time.Second,
					WriteTimeout: 15 * time.Second,
					IdleTimeout:  60 * time.Second,
				}

				go func() {
					log.Printf("Starting status API on %s", server.Addr)
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Printf("Status API stopped: %v", err)
						stop()
					}
				}()
			}

			<-ctx.Done()
			log.Println("Shutting down...")

			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Printf("Status API forced to shutdown: %v", err)
				}
			}

			runner.Wait()
			// Runs triggered over the API are not tracked by the runner.
			a.manager.Wait()
			log.Println("Scheduler exited")
			return nil
		},
	}

	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression, overrides backup.schedule")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded backup runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			db, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			store := backup.NewRunStore(db.DB)
			ctx := cmd.Context()

			if len(args) == 1 {
				run, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					printJSON(run)
					return nil
				}
				printRun(run)
				return nil
			}

			runs, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(runs)
				return nil
			}
			printRuns(runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	return cmd
}

func printRuns(runs []*backup.RunRecord) {
	if len(runs) == 0 {
		fmt.Println("No backup runs recorded")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tTRIGGER\tSTATUS\tROOTS OK\tROOTS FAILED\tPAGES\tFOLDER")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Trigger,
			run.Status,
			run.RootsSucceeded,
			run.RootsFailed,
			run.PagesUploaded,
			run.FolderName,
		)
	}
	w.Flush()
}

func printRun(run *backup.RunRecord) {
	fmt.Printf("Run:          %s\n", run.ID)
	fmt.Printf("Status:       %s\n", run.Status)
	fmt.Printf("Trigger:      %s\n", run.Trigger)
	fmt.Printf("Destination:  %s\n", run.DestinationType)
	fmt.Printf("Folder:       %s\n", run.FolderName)
	fmt.Printf("Started:      %s\n", run.StartedAt.Local().Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Printf("Finished:     %s\n", run.FinishedAt.Local().Format(time.RFC3339))
	}
	fmt.Printf("Pages found:  %d (uploaded %d)\n", run.PagesFound, run.PagesUploaded)
	if run.ErrorMessage != "" {
		fmt.Printf("Error:        %s\n", run.ErrorMessage)
	}

	for _, page := range run.Pages {
		indent := ""
		for i := 0; i < page.Depth; i++ {
			indent += "  "
		}
		switch {
		case page.ErrorMessage != "":
			fmt.Printf("%s- %s: %s\n", indent, page.Title, page.ErrorMessage)
		case page.ContentError != "":
			fmt.Printf("%s- %s (content: %s)\n", indent, page.Title, page.ContentError)
		default:
			fmt.Printf("%s- %s\n", indent, page.ContainerName)
		}
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
