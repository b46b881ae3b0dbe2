package track

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Run monitors cfg.Root until ctx is done. The snapshot is loaded from store
// before the first tick and saved back after the loop exits, so changes made
// between two runs are reported on the next one. A nil store disables
// persistence.
func Run(ctx context.Context, cfg Config, store Store) error {
	t, err := NewTracker(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		t.LoadState(store)
		t.logger.Debug("state loaded", zap.Int("items", t.Stats().Items))
	}

	var errs []error
	if err := t.Start(ctx); err != nil {
		errs = append(errs, fmt.Errorf("start tracker: %w", err))
	} else if t.cfg.Threaded {
		select {
		case <-ctx.Done():
		case <-t.Done():
		}
	}
	t.Stop()
	<-t.Done()

	if store != nil {
		if err := t.SaveState(store); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScanOnce runs a single tick against the snapshot held by store, saves the
// result, and returns the changes it reported to cfg.Handler.
func ScanOnce(cfg Config, store Store) (Changes, error) {
	t, err := NewTracker(cfg)
	if err != nil {
		return Changes{}, err
	}
	if store != nil {
		t.LoadState(store)
	}
	changes := t.Tick()
	t.Stop()
	if store != nil {
		if err := t.SaveState(store); err != nil {
			return changes, err
		}
	}
	return changes, nil
}
