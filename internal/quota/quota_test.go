package quota

import (
	"testing"
	"time"

	"github.com/vidknora/vidknora/internal/apperrors"
	"github.com/vidknora/vidknora/internal/types"
)

func TestUsageForQuotaVideos(t *testing.T) {
	q := &types.UserQuota{VideosUsed: 3, VideosLimit: 10}
	used, limit := usageForQuota(q, types.QuotaVideos)
	if used != 3 || limit != 10 {
		t.Errorf("expected 3/10, got %v/%v", used, limit)
	}
}

func TestUsageForQuotaStorage(t *testing.T) {
	q := &types.UserQuota{StorageMBUsed: 512.5, StorageMBLimit: 1024}
	used, limit := usageForQuota(q, types.QuotaStorageMB)
	if used != 512.5 || limit != 1024 {
		t.Errorf("expected 512.5/1024, got %v/%v", used, limit)
	}
}

func TestExceededErrorMessage(t *testing.T) {
	err := &apperrors.QuotaExceeded{ResourceKind: types.QuotaVideos, Used: 11, Limit: 10}
	want := "quota exceeded: videos used=11.00 limit=10.00"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestQuotaExceededIsExtractableAndNeverRetryable(t *testing.T) {
	var err error = &apperrors.QuotaExceeded{ResourceKind: types.QuotaVideos, Used: 11, Limit: 10}
	got, ok := apperrors.AsQuotaExceeded(err)
	if !ok || got.ResourceKind != types.QuotaVideos {
		t.Fatalf("expected AsQuotaExceeded to extract the quota error, got %v, %v", got, ok)
	}
	if apperrors.IsRetryable(err) {
		t.Errorf("quota exceeded must never be retryable")
	}
}

func TestPeriodLengthIs30Days(t *testing.T) {
	if periodLength != 30*24*time.Hour {
		t.Errorf("expected 30-day period, got %v", periodLength)
	}
}

func TestDriftDetection(t *testing.T) {
	d := Drift{RecordedVideos: 5, ActualVideos: 7, RecordedStorage: 100, ActualStorage: 100}
	d.VideosDrift = d.ActualVideos - d.RecordedVideos
	d.StorageMBDrift = d.ActualStorage - d.RecordedStorage
	if d.VideosDrift != 2 {
		t.Errorf("expected videos drift of 2, got %d", d.VideosDrift)
	}
	if d.StorageMBDrift != 0 {
		t.Errorf("expected no storage drift, got %v", d.StorageMBDrift)
	}
}
