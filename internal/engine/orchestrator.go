package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/miradorstack/mirador-forecast/internal/advisory"
	"github.com/miradorstack/mirador-forecast/internal/forecast"
	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/optcache"
	"github.com/miradorstack/mirador-forecast/internal/optimizer"
	"github.com/miradorstack/mirador-forecast/internal/queue"
)

// ObservationSource supplies the current observation set.
type ObservationSource interface {
	GetObservations(ctx context.Context) ([]models.Observation, error)
}

// GridOptimizer searches a model's parameter grid.
type GridOptimizer interface {
	Optimize(ctx context.Context, modelID string, series []float64, seasonalPeriod int) (optimizer.Result, error)
}

// OrchestratorConfig tunes dispatch.
type OrchestratorConfig struct {
	SeasonalPeriod     int
	MaxConcurrency     int
	JobTimeout         time.Duration
	AdvisoryEnabled    bool
	AdvisoryCredential string
	BusinessContext    string
}

// DrainReport summarises one Drain pass.
type DrainReport struct {
	SKUs      int      `json:"skus"`
	Jobs      int      `json:"jobs"`
	Written   int      `json:"written"`
	Failed    int      `json:"failed"`
	Completed []string `json:"completed"`
}

// Orchestrator turns queued SKUs into optimisation jobs and folds their
// results into the cache. Jobs run concurrently; all cache writes happen on
// the goroutine that called Drain.
type Orchestrator struct {
	logger   *slog.Logger
	store    ObservationSource
	registry *forecast.Registry
	configs  func() []forecast.ModelConfig
	cache    *optcache.Cache
	queue    *queue.Queue
	grid     GridOptimizer
	advisor  advisory.Advisor
	cfg      OrchestratorConfig

	sem   *semaphore.Weighted
	drain sync.Mutex
	wake  chan struct{}
}

// NewOrchestrator wires an orchestrator. advisor may be nil, which disables
// advisory jobs regardless of cfg.
func NewOrchestrator(
	logger *slog.Logger,
	store ObservationSource,
	registry *forecast.Registry,
	configs func() []forecast.ModelConfig,
	cache *optcache.Cache,
	q *queue.Queue,
	grid GridOptimizer,
	advisor advisory.Advisor,
	cfg OrchestratorConfig,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = forecast.NewRegistry()
	}
	if configs == nil {
		defaults := forecast.DefaultModelConfigs(registry)
		configs = func() []forecast.ModelConfig { return defaults }
	}
	if grid == nil {
		grid = optimizer.NewGridSearch(registry, optimizer.WithLogger(logger))
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		logger:   logger,
		store:    store,
		registry: registry,
		configs:  configs,
		cache:    cache,
		queue:    q,
		grid:     grid,
		advisor:  advisor,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		wake:     make(chan struct{}, 1),
	}
}

// Subscribe delivers cache versions as results land.
func (o *Orchestrator) Subscribe() (<-chan uint64, func()) {
	return o.cache.Subscribe()
}

// Trigger asks a running Run loop to drain immediately.
func (o *Orchestrator) Trigger() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue every interval, or sooner when triggered, until ctx ends.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if o.queue.Size() > 0 {
			if _, err := o.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("optimisation drain failed", slog.Any("error", err))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-o.wake:
		}
	}
}

// Drain processes every SKU currently queued. It returns once all dispatched
// jobs have reported back; SKUs enqueued meanwhile stay for the next pass.
func (o *Orchestrator) Drain(ctx context.Context) (DrainReport, error) {
	o.drain.Lock()
	defer o.drain.Unlock()

	var report DrainReport
	items := o.queue.Peek()
	if len(items) == 0 {
		return report, nil
	}
	if o.store == nil {
		return report, errors.New("observation store not configured")
	}

	observations, err := o.store.GetObservations(ctx)
	if err != nil {
		return report, fmt.Errorf("load observations: %w", err)
	}

	descriptors := forecast.EnabledDescriptors(o.registry, o.configs())
	hashesBefore := o.cache.HashComputations()
	pending := pendingBySKU(o.cache.NeedsOptimization(observations, descriptors))
	metrics.AddHashComputations(o.cache.HashComputations() - hashesBefore)
	grouped := models.GroupBySKU(observations)
	manual := manualParameters(o.configs())

	var jobs []Job
	for _, item := range items {
		modelIDs := pending[item.SKU]
		if len(modelIDs) == 0 {
			o.queue.Remove(item.SKU, item.Seq)
			report.Completed = append(report.Completed, item.SKU)
			continue
		}
		report.SKUs++
		hash, _ := o.cache.DataHash(item.SKU)
		series := models.Values(grouped[item.SKU])
		for _, modelID := range modelIDs {
			params := manual[modelID]
			jobs = append(jobs, newJob(models.MethodGrid, item.SKU, modelID, hash, series, params, o.cfg.SeasonalPeriod))
			if o.advisoryEnabled() {
				jobs = append(jobs, newJob(models.MethodAI, item.SKU, modelID, hash, series, params, o.cfg.SeasonalPeriod))
			}
		}
	}
	report.Jobs = len(jobs)

	if len(jobs) > 0 {
		results := o.dispatch(ctx, jobs)
		for env := range results {
			if o.reduce(env) {
				report.Written++
			} else {
				report.Failed++
			}
		}
	}

	remaining := pendingBySKU(o.cache.NeedsOptimization(observations, descriptors))
	for _, item := range items {
		if _, handled := pending[item.SKU]; !handled {
			continue
		}
		if left := remaining[item.SKU]; len(left) > 0 {
			o.logger.Warn("optimisation incomplete, dropping from queue",
				slog.String("sku", item.SKU),
				slog.Any("models", left),
			)
		}
		if o.queue.Remove(item.SKU, item.Seq) {
			report.Completed = append(report.Completed, item.SKU)
		}
	}

	metrics.SetQueueDepth(o.queue.Size())
	metrics.SetCacheVersion(o.cache.Version())
	o.logger.Info("optimisation drain complete",
		slog.Int("skus", report.SKUs),
		slog.Int("jobs", report.Jobs),
		slog.Int("written", report.Written),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// dispatch starts every job on the bounded pool. The returned channel closes
// after the last envelope. Jobs run on a context detached from ctx's
// cancellation so in-flight work is never abandoned half way.
func (o *Orchestrator) dispatch(ctx context.Context, jobs []Job) <-chan Envelope {
	results := make(chan Envelope, len(jobs))
	detached := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			if err := o.sem.Acquire(detached, 1); err != nil {
				results <- Envelope{JobID: job.ID, Job: job, Err: err}
				return
			}
			defer o.sem.Release(1)

			jobCtx, cancel := context.WithTimeout(detached, o.cfg.JobTimeout)
			defer cancel()
			results <- o.execute(jobCtx, job)
		}(job)
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// execute runs one job. It touches nothing but the job itself.
func (o *Orchestrator) execute(ctx context.Context, job Job) Envelope {
	start := time.Now()
	env := Envelope{JobID: job.ID, Job: job}

	switch job.Method {
	case models.MethodGrid:
		res, err := o.grid.Optimize(ctx, job.ModelID, job.Series, job.SeasonalPeriod)
		if err != nil {
			env.Err = err
			break
		}
		env.Proposal = &Proposal{Parameters: res.Parameters, Meta: res.Meta()}
	case models.MethodAI:
		rec, err := o.advisor.Recommend(ctx, advisory.Request{
			ModelID:           job.ModelID,
			HistoricalValues:  job.Series,
			CurrentParameters: job.Parameters,
			SeasonalPeriod:    job.SeasonalPeriod,
			BusinessContext:   o.cfg.BusinessContext,
		})
		if err != nil {
			env.Err = err
			break
		}
		desc, err := o.registry.Describe(job.ModelID)
		if err != nil {
			env.Err = err
			break
		}
		env.Proposal = &Proposal{Parameters: desc.Normalize(rec.OptimizedParameters), Meta: rec.Meta()}
	default:
		env.Err = fmt.Errorf("unsupported job method %q", job.Method)
	}

	env.Elapsed = time.Since(start)
	return env
}

// reduce folds one envelope into the cache and reports whether it wrote.
func (o *Orchestrator) reduce(env Envelope) bool {
	method := string(env.Job.Method)
	if env.Err != nil {
		metrics.ObserveJob(method, env.Elapsed, metrics.OutcomeError)
		attrs := []any{
			slog.String("job_id", env.JobID.String()),
			slog.String("sku", env.Job.SKU),
			slog.String("model", env.Job.ModelID),
			slog.Any("error", env.Err),
		}
		if env.Job.Method == models.MethodAI {
			o.logger.Debug("advisory proposal skipped", attrs...)
		} else {
			o.logger.Warn("grid optimisation failed", attrs...)
		}
		return false
	}

	metrics.ObserveJob(method, env.Elapsed, metrics.OutcomeSuccess)
	o.cache.SetProposal(env.Job.SKU, env.Job.ModelID, env.Job.Method, env.Proposal.Parameters, env.Job.DataHash, env.Proposal.Meta)
	return true
}

func (o *Orchestrator) advisoryEnabled() bool {
	if !o.cfg.AdvisoryEnabled || o.advisor == nil {
		return false
	}
	return advisory.ValidateCredential(o.cfg.AdvisoryCredential) == nil
}

func pendingBySKU(work []models.PendingWork) map[string][]string {
	out := make(map[string][]string, len(work))
	for _, w := range work {
		out[w.SKU] = w.Models
	}
	return out
}

func manualParameters(configs []forecast.ModelConfig) map[string]models.Parameters {
	out := make(map[string]models.Parameters, len(configs))
	for _, cfg := range configs {
		out[cfg.ID] = cfg.Parameters
	}
	return out
}
