package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"kucoin-depth-viewer/logging"
)

// CronWorker is the contract for a job run on a cron schedule
type CronWorker interface {
	// Execute runs one cycle of the worker
	Execute()

	// Stop releases the worker's resources
	Stop()

	// GetName identifies the worker in logs
	GetName() string
}

// WorkerConfig describes one scheduled worker
type WorkerConfig struct {
	Name        string     // Identifier
	Schedule    string     // Cron spec, e.g. "@every 18s"
	Worker      CronWorker // Instance to run
	Enabled     bool
	Description string
}

// WorkerManager runs workers with cron scheduling
type WorkerManager struct {
	cron      *cron.Cron
	workers   map[string]*WorkerConfig
	ctx       context.Context
	cancel    context.CancelFunc
	mutex     sync.RWMutex
	isRunning bool
	logger    *logging.Logger
}

// cronLogger routes cron's own logging into zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewWorkerManager creates a stopped manager
func NewWorkerManager(logger *logging.Logger) *WorkerManager {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{sugar: logger.Zap().Sugar().Named("cron")}

	return &WorkerManager{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		workers: make(map[string]*WorkerConfig),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// RegisterWorker adds a worker with its schedule
func (wm *WorkerManager) RegisterWorker(config *WorkerConfig) error {
	wm.mutex.Lock()
	defer wm.mutex.Unlock()

	if _, exists := wm.workers[config.Name]; exists {
		return fmt.Errorf("worker %s already registered", config.Name)
	}

	if !config.Enabled {
		wm.logger.Warn("worker registered but disabled", logging.String("worker", config.Name))
		wm.workers[config.Name] = config
		return nil
	}

	jobWrapper := func() {
		select {
		case <-wm.ctx.Done():
			return
		default:
		}

		start := time.Now()

		// A panicking worker must not take the scheduler down
		defer func() {
			if r := recover(); r != nil {
				wm.logger.Error("worker panic recovered",
					logging.String("worker", config.Name), zap.Any("panic", r))
			}
		}()

		config.Worker.Execute()

		wm.logger.Debug("worker cycle completed",
			logging.String("worker", config.Name), logging.Duration("took", time.Since(start)))
	}

	entryID, err := wm.cron.AddFunc(config.Schedule, jobWrapper)
	if err != nil {
		return fmt.Errorf("add cron job for worker %s: %w", config.Name, err)
	}

	wm.workers[config.Name] = config
	wm.logger.Debug("worker registered",
		logging.String("worker", config.Name),
		logging.String("schedule", config.Schedule),
		logging.Int("entry", int(entryID)))

	return nil
}

// RemoveWorker stops and forgets a worker
func (wm *WorkerManager) RemoveWorker(name string) error {
	wm.mutex.Lock()
	defer wm.mutex.Unlock()

	config, exists := wm.workers[name]
	if !exists {
		return fmt.Errorf("worker %s not found", name)
	}

	config.Worker.Stop()
	delete(wm.workers, name)
	return nil
}

// Start launches the scheduler. It is a no-op when already running or when
// no worker is enabled.
func (wm *WorkerManager) Start() {
	wm.mutex.Lock()
	defer wm.mutex.Unlock()

	if wm.isRunning {
		return
	}

	enabledCount := 0
	for _, config := range wm.workers {
		if config.Enabled {
			enabledCount++
		}
	}
	if enabledCount == 0 {
		return
	}

	wm.cron.Start()
	wm.isRunning = true
	wm.logger.Debug("worker manager started", logging.Int("workers", enabledCount))
}

// Stop halts the scheduler, waiting for running jobs, then stops every worker
func (wm *WorkerManager) Stop() {
	wm.mutex.Lock()
	defer wm.mutex.Unlock()

	// Cancel first so queued jobs bail out instead of touching a closed session
	wm.cancel()

	if wm.isRunning {
		ctx := wm.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			wm.logger.Warn("timed out waiting for cron jobs to finish")
		}
		wm.isRunning = false
	}

	for _, config := range wm.workers {
		config.Worker.Stop()
	}
}

// GetWorkerStatus reports the enabled flag of every registered worker
func (wm *WorkerManager) GetWorkerStatus() map[string]bool {
	wm.mutex.RLock()
	defer wm.mutex.RUnlock()

	status := make(map[string]bool)
	for name, config := range wm.workers {
		status[name] = config.Enabled
	}
	return status
}
