package cancellation

import (
	"testing"

	"github.com/vidknora/vidknora/internal/types"
)

func TestCanceledKeyIsNamespaced(t *testing.T) {
	key := canceledKey("v1")
	if key != "vidknora:canceled:v1" {
		t.Errorf("unexpected key: %q", key)
	}
}

func TestCleanupOptionValues(t *testing.T) {
	if KeepVideo != "keep_video" {
		t.Errorf("unexpected KeepVideo value: %q", KeepVideo)
	}
	if FullDelete != "full_delete" {
		t.Errorf("unexpected FullDelete value: %q", FullDelete)
	}
}

func TestTerminalVideosAreNotCancelable(t *testing.T) {
	for _, status := range []types.VideoStatus{
		types.VideoStatusCompleted, types.VideoStatusFailed, types.VideoStatusCanceled,
	} {
		v := &types.Video{Status: status}
		if v.IsCancellable() {
			t.Errorf("status %s should not be cancellable", status)
		}
	}
}

func TestNonTerminalVideosAreCancelable(t *testing.T) {
	for _, status := range []types.VideoStatus{
		types.VideoStatusPending, types.VideoStatusDownloading, types.VideoStatusTranscribing,
		types.VideoStatusChunking, types.VideoStatusIndexing,
	} {
		v := &types.Video{Status: status}
		if !v.IsCancellable() {
			t.Errorf("status %s should be cancellable", status)
		}
	}
}
