package quota

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Drift is one user's observed reconciliation mismatch between the
// quota row's cached counters and the source-of-truth rollup computed
// from videos/chunks.
type Drift struct {
	UserID           string
	VideosDrift      int
	StorageMBDrift   float64
	RecordedVideos   int
	ActualVideos     int
	RecordedStorage  float64
	ActualStorage    float64
}

// Reconciler recomputes usage counters directly from source tables,
// bypassing gorm for a single cross-table aggregate query (spec §4.9,
// §4.12 "quota reconciliation" periodic job).
type Reconciler struct {
	pool *pgxpool.Pool
}

// NewReconciler constructs a Reconciler over a raw pgx pool.
func NewReconciler(pool *pgxpool.Pool) *Reconciler {
	return &Reconciler{pool: pool}
}

const reconcileQuery = `
SELECT
  q.user_id,
  q.videos_used,
  q.storage_mb_used,
  COALESCE(v.video_count, 0) AS actual_videos,
  COALESCE(v.storage_mb, 0) AS actual_storage_mb
FROM user_quotas q
LEFT JOIN (
  SELECT user_id,
         COUNT(*) AS video_count,
         SUM(audio_mb) AS storage_mb
  FROM videos
  WHERE is_deleted = false
  GROUP BY user_id
) v ON v.user_id = q.user_id
WHERE q.period_end > now()
`

// FindDrift scans every active-period quota row and reports any user
// whose cached videos_used/storage_mb_used counter disagrees with the
// count/sum derived directly from the videos table.
func (r *Reconciler) FindDrift(ctx context.Context) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, reconcileQuery)
	if err != nil {
		return nil, fmt.Errorf("reconcile query: %w", err)
	}
	defer rows.Close()

	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.UserID, &d.RecordedVideos, &d.RecordedStorage, &d.ActualVideos, &d.ActualStorage); err != nil {
			return nil, fmt.Errorf("scan reconcile row: %w", err)
		}
		d.VideosDrift = d.ActualVideos - d.RecordedVideos
		d.StorageMBDrift = d.ActualStorage - d.RecordedStorage
		if d.VideosDrift != 0 || d.StorageMBDrift != 0 {
			drifts = append(drifts, d)
		}
	}
	return drifts, rows.Err()
}

// Apply corrects a quota row's cached counters to match the
// reconciled source-of-truth values.
func (r *Reconciler) Apply(ctx context.Context, d Drift) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_quotas SET videos_used = $1, storage_mb_used = $2 WHERE user_id = $3`,
		d.ActualVideos, d.ActualStorage, d.UserID)
	return err
}
