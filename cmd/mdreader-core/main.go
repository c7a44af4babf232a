// Command mdreader-core runs the local-first document core: local storage,
// the offline change queue, and the background sync loop against the cloud
// backend.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kimhsiao/mdreader/core/internal/config"
	"github.com/kimhsiao/mdreader/core/internal/logging"
	"github.com/kimhsiao/mdreader/core/internal/realtime"
	"github.com/kimhsiao/mdreader/core/internal/remote"
	"github.com/kimhsiao/mdreader/core/internal/storage"
	syncpkg "github.com/kimhsiao/mdreader/core/internal/sync"
	"github.com/kimhsiao/mdreader/core/internal/workspace"
)

type core struct {
	cfg     config.Config
	store   storage.Provider
	client  *remote.Client
	manager *syncpkg.Manager
	tracker *realtime.Tracker
	coord   *workspace.Coordinator
}

func setup() (*core, error) {
	cfg := config.Load()
	logging.Init(os.Stderr, logging.LogLevel(cfg.LogLevel))

	store, err := storage.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(); err != nil {
		return nil, err
	}

	client := remote.NewClient(remote.Options{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
	})
	manager := syncpkg.NewManager(store, client, syncpkg.NewBus())
	tracker := realtime.NewTracker(cfg.RealtimeURL)
	session := storage.NewKVStore(filepath.Join(cfg.DataDir, "session.json"))

	return &core{
		cfg:     cfg,
		store:   store,
		client:  client,
		manager: manager,
		tracker: tracker,
		coord:   workspace.NewCoordinator(store, client, tracker, manager.Bus(), session),
	}, nil
}

func main() {
	app := &cli.App{
		Name:  "mdreader-core",
		Usage: "Local-first document sync core",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the background sync loop until interrupted",
				Action: runLoop,
			},
			{
				Name:   "status",
				Usage:  "Show storage backend and sync state",
				Action: showStatus,
			},
			{
				Name:   "flush",
				Usage:  "Run one reconciliation pass over all pending documents",
				Action: flushOnce,
			},
			{
				Name:      "switch",
				Usage:     "Activate a workspace and list its documents",
				ArgsUsage: "<workspace-id>",
				Action:    switchWorkspace,
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a divergence conflict",
				ArgsUsage: "<conflict-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "keep",
						Usage:    "Which side wins: local or remote",
						Required: true,
					},
				},
				Action: resolveConflict,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runLoop(c *cli.Context) error {
	app, err := setup()
	if err != nil {
		return err
	}
	defer app.store.Close()
	defer app.tracker.ReleaseAll()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scheduler := syncpkg.NewScheduler(app.manager, &syncpkg.SchedulerConfig{
		SyncInterval:  app.cfg.SyncInterval,
		QueueInterval: app.cfg.QueueInterval,
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	<-ctx.Done()
	return nil
}

func showStatus(c *cli.Context) error {
	app, err := setup()
	if err != nil {
		return err
	}
	defer app.store.Close()

	info, err := app.store.Info()
	if err != nil {
		return err
	}
	fmt.Printf("Storage:   %s (%d bytes used)\n", info.Provider, info.Used)
	if ws, doc := app.coord.LastSession(); ws != "" {
		fmt.Printf("Session:   workspace %s", ws)
		if doc != "" {
			fmt.Printf(", document %s", doc)
		}
		fmt.Println()
	}

	pending, err := app.store.ListPendingDocuments()
	if err != nil {
		return err
	}
	fmt.Printf("Pending:   %d document(s)\n", len(pending))
	for _, doc := range pending {
		fmt.Printf("  %s  %q\n", doc.ID, doc.Title)
	}

	conflicts := app.manager.ActiveConflicts()
	fmt.Printf("Conflicts: %d\n", len(conflicts))
	for _, conflict := range conflicts {
		fmt.Printf("  %s  document %s\n", conflict.ID, conflict.DocumentID)
	}
	return nil
}

func flushOnce(c *cli.Context) error {
	app, err := setup()
	if err != nil {
		return err
	}
	defer app.store.Close()

	conflicts, err := app.manager.FlushAll(c.Context)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Println("All documents synced")
		return nil
	}
	fmt.Printf("%d conflict(s) need resolution:\n", len(conflicts))
	for _, conflict := range conflicts {
		fmt.Printf("  %s  document %s\n", conflict.ID, conflict.DocumentID)
	}
	return nil
}

func switchWorkspace(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: switch <workspace-id>")
	}

	app, err := setup()
	if err != nil {
		return err
	}
	defer app.store.Close()
	defer app.tracker.ReleaseAll()

	from, _ := app.coord.LastSession()
	if err := app.coord.Switch(c.Context, from, c.Args().First()); err != nil {
		return err
	}

	docs := app.coord.ActiveDocuments()
	fmt.Printf("Workspace %s: %d document(s)\n", app.coord.Current(), len(docs))
	for _, doc := range docs {
		fmt.Printf("  %s  %q\n", doc.ID, doc.Title)
	}
	return nil
}

func resolveConflict(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: resolve <conflict-id> --keep local|remote")
	}
	keep := syncpkg.Resolution(c.String("keep"))
	if keep != syncpkg.ResolutionLocal && keep != syncpkg.ResolutionRemote {
		return fmt.Errorf("--keep must be %q or %q", syncpkg.ResolutionLocal, syncpkg.ResolutionRemote)
	}

	app, err := setup()
	if err != nil {
		return err
	}
	defer app.store.Close()

	if err := app.manager.ResolveConflict(c.Context, c.Args().First(), keep); err != nil {
		return err
	}
	fmt.Println("Conflict resolved")
	return nil
}
