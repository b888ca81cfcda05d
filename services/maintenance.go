package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"document-intelligence-platform/internal/logger"
	"document-intelligence-platform/models"
)

// MaintenanceStore is the read/write surface the background sweeps use.
type MaintenanceStore interface {
	// FindStuck lists documents sitting in parsing or analyzing whose
	// last update is older than the cutoff.
	FindStuck(ctx context.Context, cutoff time.Time) ([]models.Document, error)

	CompareAndSwapStatus(ctx context.Context, id, from, to, reason string) error

	// ListFilePaths returns the blob paths every document references.
	ListFilePaths(ctx context.Context) (map[string]bool, error)
}

// MaintenanceService runs periodic housekeeping: failing documents a
// crashed worker abandoned mid-run, and removing blobs no document
// references anymore.
type MaintenanceService struct {
	store          MaintenanceStore
	blobs          BlobStore
	scheduler      *gocron.Scheduler
	stuckThreshold time.Duration
}

func NewMaintenanceService(store MaintenanceStore, blobs BlobStore, stuckThreshold time.Duration) *MaintenanceService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &MaintenanceService{
		store:          store,
		blobs:          blobs,
		scheduler:      s,
		stuckThreshold: stuckThreshold,
	}
}

// Start registers the sweeps and runs them in the background.
func (m *MaintenanceService) Start(sweepInterval, purgeInterval time.Duration) error {
	if _, err := m.scheduler.Every(sweepInterval).Tag("stuck-sweep").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := m.SweepStuck(ctx); err != nil {
			logger.Error("stuck document sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}

	if _, err := m.scheduler.Every(purgeInterval).Tag("orphan-purge").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := m.PurgeOrphanBlobs(ctx); err != nil {
			logger.Error("orphan blob purge failed", "error", err)
		}
	}); err != nil {
		return err
	}

	m.scheduler.StartAsync()
	return nil
}

func (m *MaintenanceService) Stop() {
	m.scheduler.Stop()
}

// SweepStuck fails documents abandoned in a transient status. The swap
// is conditional, so a document a live worker is still moving forward
// is left alone.
func (m *MaintenanceService) SweepStuck(ctx context.Context) error {
	cutoff := time.Now().Add(-m.stuckThreshold)
	stuck, err := m.store.FindStuck(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, doc := range stuck {
		err := m.store.CompareAndSwapStatus(ctx, doc.ID, doc.Status, models.StatusFailed, "processing timed out")
		if err != nil {
			logger.Debug("stuck sweep skipped document", "document_id", doc.ID, "error", err)
			continue
		}
		logger.Warn("marked stuck document as failed", "document_id", doc.ID, "previous_status", doc.Status)
	}
	return nil
}

// PurgeOrphanBlobs removes stored files that no document references.
func (m *MaintenanceService) PurgeOrphanBlobs(ctx context.Context) error {
	referenced, err := m.store.ListFilePaths(ctx)
	if err != nil {
		return err
	}

	paths, err := m.blobs.List(ctx)
	if err != nil {
		return err
	}

	removed := 0
	for _, path := range paths {
		if referenced[path] {
			continue
		}
		if err := m.blobs.Remove(ctx, path); err != nil {
			logger.Debug("orphan purge failed to remove blob", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("purged orphan blobs", "count", removed)
	}
	return nil
}
