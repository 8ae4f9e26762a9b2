// Package cleanup runs the periodic maintenance jobs that keep
// storage, quotas, and conversation memory from drifting out of sync
// with the rest of the system: stale-pipeline GC, orphan-file GC,
// quota reconciliation, and memory consolidation (spec §4.12).
package cleanup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vidknora/vidknora/internal/cancellation"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/quota"
	"github.com/vidknora/vidknora/internal/storage"
	"github.com/vidknora/vidknora/internal/types"
)

// staleThreshold is how long a video may sit in pending/downloading
// before it's treated as a stuck job and auto-canceled (spec §4.12.1).
const staleThreshold = 24 * time.Hour

// quotaDiscrepancyThresholdMB bounds how large a reconciliation drift
// must be before it's worth a write (spec §4.12.3, avoids DB churn on
// rounding noise).
const quotaDiscrepancyThresholdMB = 10.0

// MemoryConsolidator is implemented by internal/memory's consolidation
// service; defined here, at the point of use, so this package doesn't
// need to import it (spec §4.12.4, §4.15).
type MemoryConsolidator interface {
	ConsolidateAllStale(ctx context.Context, staleSince time.Duration, dryRun bool) (ConsolidationStats, error)
}

// ConsolidationStats mirrors the counts a consolidation pass reports.
type ConsolidationStats struct {
	Conversations int
	Merged        int
	Decayed       int
	Pruned        int
}

// StaleVideosResult reports what CleanupStaleVideos did.
type StaleVideosResult struct {
	Canceled   int
	TotalStale int
	Errors     []string
}

// OrphanedFilesResult reports what CleanupOrphanedFiles did.
type OrphanedFilesResult struct {
	OrphanedDirs int
	FreedMB      float64
}

// ReconcileResult reports what ReconcileStorageQuotas did.
type ReconcileResult struct {
	UsersChecked int
	Corrections  int
}

// Jobs wires every periodic job's dependencies.
type Jobs struct {
	DB         *gorm.DB
	Canceler   *cancellation.Service
	Storage    *storage.Facade
	Reconciler *quota.Reconciler
	Memory     MemoryConsolidator
}

// CleanupStaleVideos cancels videos stuck in pending/downloading for
// longer than staleThreshold — jobs that likely died without updating
// their own status (spec §4.12.1, hourly).
func (j *Jobs) CleanupStaleVideos(ctx context.Context) (StaleVideosResult, error) {
	cutoff := time.Now().Add(-staleThreshold)

	var stale []types.Video
	err := j.DB.WithContext(ctx).
		Where("status IN ? AND created_at < ? AND is_deleted = ?",
			[]types.VideoStatus{types.VideoStatusPending, types.VideoStatusDownloading}, cutoff, false).
		Find(&stale).Error
	if err != nil {
		return StaleVideosResult{}, fmt.Errorf("query stale videos: %w", err)
	}

	result := StaleVideosResult{TotalStale: len(stale)}
	for _, v := range stale {
		if _, err := j.Canceler.Cancel(ctx, v.ID, cancellation.KeepVideo); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", v.ID, err))
			logger.GetLogger(ctx).Warnf("cancel stale video %s: %v", v.ID, err)
			continue
		}
		result.Canceled++
	}
	logger.GetLogger(ctx).Infof("stale video cleanup: canceled=%d total=%d errors=%d",
		result.Canceled, result.TotalStale, len(result.Errors))
	return result, nil
}

// CleanupOrphanedFiles removes blob directories whose (user, video) no
// longer has a matching row in the videos table — handles the case
// where a video was hard-deleted but its files outlived the row (spec
// §4.12.2, daily).
func (j *Jobs) CleanupOrphanedFiles(ctx context.Context) (OrphanedFilesResult, error) {
	entries, err := j.Storage.WalkAllUserDirs(ctx)
	if err != nil {
		return OrphanedFilesResult{}, fmt.Errorf("walk storage: %w", err)
	}

	type dirKey struct{ root, userID, videoID string }
	sizeByDir := map[dirKey]int64{}
	for _, e := range entries {
		parts := strings.SplitN(e.Path, "/", 4)
		if len(parts) < 3 {
			continue
		}
		key := dirKey{root: parts[0], userID: parts[1], videoID: parts[2]}
		sizeByDir[key] += e.Size
	}

	var result OrphanedFilesResult
	for key, size := range sizeByDir {
		var count int64
		if err := j.DB.WithContext(ctx).Model(&types.Video{}).Where("id = ?", key.videoID).Count(&count).Error; err != nil {
			logger.GetLogger(ctx).Warnf("check video %s for orphan GC: %v", key.videoID, err)
			continue
		}
		if count > 0 {
			continue
		}
		prefix := fmt.Sprintf("%s/%s/%s/", key.root, key.userID, key.videoID)
		if err := j.Storage.DeletePrefix(ctx, prefix); err != nil {
			logger.GetLogger(ctx).Warnf("delete orphaned dir %s: %v", prefix, err)
			continue
		}
		result.OrphanedDirs++
		result.FreedMB += float64(size) / (1024 * 1024)
		logger.GetLogger(ctx).Infof("removed orphaned dir: %s", prefix)
	}

	logger.GetLogger(ctx).Infof("orphaned file cleanup: dirs=%d freed_mb=%.2f", result.OrphanedDirs, result.FreedMB)
	return result, nil
}

// ReconcileStorageQuotas corrects cached quota counters that have
// drifted from the videos table (spec §4.9, §4.12.3, daily). Drifts
// smaller than quotaDiscrepancyThresholdMB (and with no video-count
// drift) are left alone to avoid unnecessary writes.
func (j *Jobs) ReconcileStorageQuotas(ctx context.Context) (ReconcileResult, error) {
	drifts, err := j.Reconciler.FindDrift(ctx)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("find drift: %w", err)
	}

	result := ReconcileResult{UsersChecked: len(drifts)}
	for _, d := range drifts {
		if d.VideosDrift == 0 && absFloat(d.StorageMBDrift) <= quotaDiscrepancyThresholdMB {
			continue
		}
		if err := j.Reconciler.Apply(ctx, d); err != nil {
			logger.GetLogger(ctx).Warnf("apply drift correction for user %s: %v", d.UserID, err)
			continue
		}
		result.Corrections++
		logger.GetLogger(ctx).Infof("corrected quota for user=%s videos %d->%d storage_mb %.2f->%.2f",
			d.UserID, d.RecordedVideos, d.ActualVideos, d.RecordedStorage, d.ActualStorage)
	}
	return result, nil
}

// ConsolidateMemory prunes and deduplicates facts for conversations
// that have been idle for at least staleSince (spec §4.12.4, §4.15,
// daily).
func (j *Jobs) ConsolidateMemory(ctx context.Context, staleSince time.Duration) (ConsolidationStats, error) {
	if j.Memory == nil {
		return ConsolidationStats{}, nil
	}
	stats, err := j.Memory.ConsolidateAllStale(ctx, staleSince, false)
	if err != nil {
		return ConsolidationStats{}, fmt.Errorf("consolidate memory: %w", err)
	}
	logger.GetLogger(ctx).Infof("memory consolidation: conversations=%d merged=%d decayed=%d pruned=%d",
		stats.Conversations, stats.Merged, stats.Decayed, stats.Pruned)
	return stats, nil
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
