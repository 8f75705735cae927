package daemon

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/romm-sync/saveport/internal/config"
	"github.com/romm-sync/saveport/internal/discovery"
	"github.com/romm-sync/saveport/internal/reconcile"
	"github.com/romm-sync/saveport/internal/rommclient"
	"github.com/romm-sync/saveport/internal/store"
)

// Daemon fuses the configurable sleep, the coalescing event trigger, the
// filesystem watcher, and the command socket into one background sync
// loop: exactly one goroutine (the sync actor) ever calls reconcile.RunSync,
// so concurrent timer, filesystem, and operator-triggered syncs collapse
// into a single serialized stream rather than racing each other.
type Daemon struct {
	holder *config.Holder
	db     *store.Store
	logger *slog.Logger

	sleeper *Sleeper
	setter  *Setter

	triggerTx *TriggerSender
	triggerRx *TriggerReceiver

	rootsPub *RootsPublisher
	rootsSub *RootsSubscriber

	clientMu sync.Mutex
	client   *rommclient.Client

	socketPath string
}

// New builds a Daemon from the initial config held by holder. db is the
// already-open sync-metadata store; the caller owns its lifetime. socketPath
// is the Unix domain socket Run listens on for operator commands.
func New(holder *config.Holder, db *store.Store, socketPath string, logger *slog.Logger) (*Daemon, error) {
	cfg := holder.Config()

	interval, err := config.ParseDuration(cfg.System.PollInterval)
	if err != nil {
		return nil, err
	}

	sleeper, setter := NewConfigurableSleep(interval)
	triggerTx, triggerRx := NewEventTrigger()
	rootsPub, rootsSub := NewRootsWatch(watchedRoots(cfg, logger))

	return &Daemon{
		holder:    holder,
		db:        db,
		logger:    logger,
		sleeper:    sleeper,
		setter:     setter,
		triggerTx:  triggerTx,
		triggerRx:  triggerRx,
		rootsPub:   rootsPub,
		rootsSub:   rootsSub,
		client:     rommclient.New(cfg.Romm, logger),
		socketPath: socketPath,
	}, nil
}

// Run starts the poll-timer task, the filesystem-watch task, the sync
// actor, and the command socket, and blocks until ctx is cancelled. Every
// goroutine it starts exits when ctx is done.
func (d *Daemon) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.pollLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		FSWatchTask(ctx, d.rootsSub, d.triggerTx, newFsnotifyWatcher, d.logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.syncActor(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		socket := NewCommandSocket(d.socketPath, d, d.logger)
		if err := socket.Serve(ctx); err != nil {
			d.logger.Error("daemon: command socket exited", "error", err)
		}
	}()

	<-ctx.Done()
	wg.Wait()
}

// pollLoop fires the trigger once per configured poll interval,
// forever, until ctx is cancelled.
func (d *Daemon) pollLoop(ctx context.Context) {
	for {
		if err := d.sleeper.Sleep(ctx); err != nil {
			return
		}
		d.triggerTx.Trigger()
	}
}

// syncActor is the single consumer of trigger events: it waits for a
// trigger, runs one full sync pass, and loops. Because this is the only
// goroutine that calls reconcile.RunSync, a poll-timer trigger, a
// filesystem-change trigger, and an operator-requested trigger arriving
// together collapse into one sync pass rather than three concurrent ones.
func (d *Daemon) syncActor(ctx context.Context) {
	for {
		if err := d.triggerRx.WaitAndReset(ctx); err != nil {
			return
		}
		d.runSyncPass(ctx)
	}
}

func (d *Daemon) runSyncPass(ctx context.Context) {
	cfg := d.holder.Config()
	client := d.currentClient()

	cycleID := uuid.NewString()
	logger := d.logger.With("cycle_id", cycleID)

	discoverCh := discovery.Discover(ctx, cfg, logger)
	report, err := reconcile.RunSync(ctx, discoverCh, cfg.RommFormat(), client, d.db, logger)
	if err != nil {
		logger.Error("daemon: sync pass completed with errors", "error", err,
			"pushed", report.Pushed, "pulled", report.Pulled, "failed", report.Failed)
		return
	}
	logger.Info("daemon: sync pass complete",
		"pushed", report.Pushed, "pulled", report.Pulled,
		"resynced_db", report.ResyncedDB, "noop", report.Noop, "skipped", report.Skipped)
}

// DoSync requests an immediate sync pass. Coalesces with any pending
// trigger already awaiting the sync actor.
func (d *Daemon) DoSync() {
	d.triggerTx.Trigger()
}

// ReloadConfig re-reads the config file(s) at holder.Path(), publishes the
// new poll interval and save roots, and swaps in a new remote client built
// from the reloaded romm section. A config load failure leaves the running
// daemon on its previous config and is returned to the caller (typically
// relayed back over the command socket).
func (d *Daemon) ReloadConfig(ctx context.Context) error {
	cfg, err := config.LoadOrDefault([]string{d.holder.Path()}, d.logger)
	if err != nil {
		return err
	}

	d.holder.Update(cfg)

	interval, err := config.ParseDuration(cfg.System.PollInterval)
	if err != nil {
		return err
	}
	d.setter.Set(interval)
	d.rootsPub.Set(watchedRoots(cfg, d.logger))

	d.clientMu.Lock()
	d.client = rommclient.New(cfg.Romm, d.logger)
	d.clientMu.Unlock()

	d.logger.Info("daemon: config reloaded", "poll_interval", cfg.System.PollInterval)
	return nil
}

// watchedRoots returns the save roots to pass to the filesystem watcher,
// or nil when cfg.System.SyncOnFileChange is false: an empty root list
// means FSWatchTask adds no watches and so never fires the trigger,
// which is the same as disabling the watcher outright without needing a
// separate on/off switch in the fabric itself.
func watchedRoots(cfg *config.Config, logger *slog.Logger) []string {
	if !cfg.System.SyncOnFileChange {
		return nil
	}
	return discovery.SaveRoots(cfg, logger)
}

func (d *Daemon) currentClient() *rommclient.Client {
	d.clientMu.Lock()
	defer d.clientMu.Unlock()
	return d.client
}
