// Package harvest runs the fetch, flatten and reconcile pipeline and keeps
// the last completed result available to readers.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/sensorthings-metadata/internal/catalog"
	"github.com/02loveslollipop/sensorthings-metadata/internal/lock"
	"github.com/02loveslollipop/sensorthings-metadata/internal/logger"
	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
	"github.com/02loveslollipop/sensorthings-metadata/internal/normalize"
	"github.com/02loveslollipop/sensorthings-metadata/internal/reconcile"
	"github.com/02loveslollipop/sensorthings-metadata/internal/sta"
)

const publishTimeout = 30 * time.Second

// Options configures a Service.
type Options struct {
	STAC        catalog.STACOptions
	Incremental bool
	// Store holds the incremental state; required when Incremental is set.
	Store reconcile.Store
	// Interval is the minimum age of the current snapshot before Refresh
	// harvests again. Zero refreshes on every call.
	Interval   time.Duration
	Locker     lock.Locker
	Publishers []Publisher
	Logger     *slog.Logger
}

// Service owns the harvest pipeline. At most one run executes at a time.
type Service struct {
	client *sta.Client
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	current atomic.Pointer[Snapshot]
	// completed is set once a run has published a snapshot.
	completed atomic.Bool
}

// New returns a Service reading from client.
func New(client *sta.Client, opts Options) (*Service, error) {
	if client == nil {
		return nil, errors.New("harvest: nil entity client")
	}
	if opts.Incremental && opts.Store == nil {
		return nil, errors.New("harvest: incremental mode needs a state store")
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Service{
		client: client,
		opts:   opts,
		logger: opts.Logger,
		now:    time.Now,
	}
	s.current.Store(newSnapshot("", time.Time{}, nil, opts.STAC))
	return s, nil
}

// Current returns the last published snapshot. Before the first run it is an
// empty snapshot.
func (s *Service) Current() *Snapshot {
	return s.current.Load()
}

// Datasets returns the records of the current snapshot.
func (s *Service) Datasets() Datasets {
	snap := s.Current()
	return Datasets{Records: snap.Records, Count: len(snap.Records), Incremental: snap.Incremental}
}

// STACItems returns the STAC projection of the current snapshot.
func (s *Service) STACItems() catalog.FeatureCollection {
	return s.Current().STAC
}

// DCATCatalog returns the DCAT projection of the current snapshot.
func (s *Service) DCATCatalog() catalog.DCATCatalog {
	return s.Current().DCAT
}

// Run harvests unconditionally.
func (s *Service) Run(ctx context.Context) (*Snapshot, error) {
	return s.Refresh(ctx, true)
}

// Refresh harvests when force is set or the current snapshot is older than
// the configured interval, and returns the snapshot readers should see.
func (s *Service) Refresh(ctx context.Context, force bool) (*Snapshot, error) {
	if !force && s.fresh() {
		return s.Current(), nil
	}

	release, err := s.opts.Locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire harvest lock: %w", err)
	}
	defer release()

	// another caller may have finished a run while we waited
	if !force && s.fresh() {
		return s.Current(), nil
	}
	return s.run(ctx)
}

func (s *Service) fresh() bool {
	if !s.completed.Load() || s.opts.Interval <= 0 {
		return false
	}
	return s.now().Sub(s.Current().HarvestedAt) < s.opts.Interval
}

// run executes one harvest. The caller holds the lock.
func (s *Service) run(ctx context.Context) (*Snapshot, error) {
	run := Run{
		ID:        uuid.NewString(),
		Endpoint:  s.client.Endpoint(),
		StartedAt: s.now(),
	}
	log := s.logger.With("run_id", run.ID)
	ctx = logger.WithContext(ctx, log)
	log.Info("harvest started", "endpoint", run.Endpoint, "incremental", s.opts.Incremental)

	snap, err := s.harvest(ctx, &run)
	run.Duration = s.now().Sub(run.StartedAt)
	run.Snapshot = snap
	run.Err = err

	switch {
	case snap != nil:
		s.current.Store(snap)
		s.completed.Store(true)
		if err != nil {
			log.Error("harvest state not committed", "error", err, "records", len(snap.Records))
		} else {
			log.Info("harvest finished", "records", len(snap.Records), "pages", run.Pages,
				"skipped", run.Skipped, "duration", run.Duration)
		}
	default:
		log.Error("harvest failed", "error", err, "pages", run.Pages)
	}

	s.publish(ctx, run)
	return snap, err
}

func (s *Service) harvest(ctx context.Context, run *Run) (*Snapshot, error) {
	log := logger.FromContext(ctx)
	records := []models.Record{}

	pager := s.client.Things()
	for pager.More() {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		run.Pages = page.Number

		for i, raw := range page.Entities {
			thing, err := normalize.DecodeThing(raw)
			if err != nil {
				run.Skipped++
				log.Warn("skipping malformed entity", "error", &models.MalformedEntityError{Page: page.Number, Index: i, Err: err})
				continue
			}
			for _, rejected := range thing.Rejected {
				log.Warn("skipping malformed datastream", "thing_id", thing.ID,
					"error", &models.MalformedEntityError{Page: page.Number, Index: i, Err: rejected})
			}
			records = append(records, normalize.Flatten(thing)...)
		}
	}

	if !s.opts.Incremental {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("harvest: %w", err)
		}
		return newSnapshot(run.ID, s.now(), records, s.opts.STAC), nil
	}

	out, err := reconcile.Run(ctx, s.opts.Store, records)
	if err != nil && !models.IsStateWrite(err) {
		return nil, err
	}

	if len(out.Duplicates) > 0 {
		log.Warn("ignoring repeated datastream ids", "ids", out.Duplicates)
	}
	snap := newSnapshot(run.ID, s.now(), out.Records, s.opts.STAC)
	summary := out.Summary
	snap.Incremental = &summary
	snap.Statuses = out.Statuses
	return snap, err
}

func (s *Service) publish(ctx context.Context, run Run) {
	if len(s.opts.Publishers) == 0 {
		return
	}
	// sinks still record runs whose caller went away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	log := logger.FromContext(ctx)
	for _, p := range s.opts.Publishers {
		if err := p.Publish(ctx, run); err != nil {
			log.Warn("publisher failed", "publisher", p.Name(), "error", err)
		}
	}
}

// Schedule refreshes the snapshot immediately and then on every tick until
// ctx is done. Failed runs are logged and retried on the next tick.
func (s *Service) Schedule(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("harvest: invalid schedule interval %s", every)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if _, err := s.Refresh(ctx, false); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled harvest failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
