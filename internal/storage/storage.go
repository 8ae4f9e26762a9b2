// Package storage is the C1 storage facade: a scoped key-value blob
// store keyed by (user, video) for audio and transcript blobs, with
// pluggable backends (spec §4.1).
package storage

import (
	"context"
	"fmt"
	"io"
)

// Backend is the pluggable blob storage primitive. Paths it returns
// are opaque to callers; only the facade in this package interprets
// them (spec §4.1 "Paths are opaque to callers").
type Backend interface {
	Put(ctx context.Context, path string, data io.Reader, size int64) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	// Size returns the byte size of the object at path, or 0 if absent.
	Size(ctx context.Context, path string) (int64, error)
	// WalkRoot lists (path, size) pairs for every object stored
	// under the given root prefix — used by usage accounting (§4.1)
	// and orphan-file GC (§4.12.2).
	WalkRoot(ctx context.Context, root string) ([]Entry, error)
	// DeletePrefix removes every object under prefix; used to drop a
	// video's directory idempotently (spec §4.1 "must not fail on
	// missing files").
	DeletePrefix(ctx context.Context, prefix string) error
}

// Entry is one object discovered by WalkRoot.
type Entry struct {
	Path string
	Size int64
}

// Facade implements the C1 operations on top of a Backend.
type Facade struct {
	backend Backend
}

// New constructs a storage Facade over the given backend.
func New(backend Backend) *Facade {
	return &Facade{backend: backend}
}

func audioPath(userID, videoID, name string) string {
	return fmt.Sprintf("audio/%s/%s/%s", userID, videoID, name)
}

func transcriptPath(userID, videoID string) string {
	return fmt.Sprintf("transcripts/%s/%s/transcript.json", userID, videoID)
}

func audioDir(userID, videoID string) string {
	return fmt.Sprintf("audio/%s/%s/", userID, videoID)
}

func transcriptDir(userID, videoID string) string {
	return fmt.Sprintf("transcripts/%s/%s/", userID, videoID)
}

// PutAudio stores the downloaded audio blob and returns its opaque path.
func (f *Facade) PutAudio(ctx context.Context, userID, videoID string, data io.Reader, size int64, name string) (string, error) {
	path := audioPath(userID, videoID, name)
	if err := f.backend.Put(ctx, path, data, size); err != nil {
		return "", fmt.Errorf("put audio: %w", err)
	}
	return path, nil
}

// GetAudio opens the audio blob at the given opaque path.
func (f *Facade) GetAudio(ctx context.Context, path string) (io.ReadCloser, error) {
	return f.backend.Get(ctx, path)
}

// DeleteAudio removes a video's entire audio directory idempotently.
// Returns whether anything was actually removed (for cleanup's
// freed-bytes accounting, spec §4.11).
func (f *Facade) DeleteAudio(ctx context.Context, userID, videoID string) (bool, error) {
	dir := audioDir(userID, videoID)
	entries, err := f.backend.WalkRoot(ctx, dir)
	if err != nil {
		return false, err
	}
	if err := f.backend.DeletePrefix(ctx, dir); err != nil {
		return false, fmt.Errorf("delete audio: %w", err)
	}
	return len(entries) > 0, nil
}

// PutTranscript stores the structured transcript object as JSON and
// returns its opaque path.
func (f *Facade) PutTranscript(ctx context.Context, userID, videoID string, data io.Reader, size int64) (string, error) {
	path := transcriptPath(userID, videoID)
	if err := f.backend.Put(ctx, path, data, size); err != nil {
		return "", fmt.Errorf("put transcript: %w", err)
	}
	return path, nil
}

// GetTranscript opens the transcript blob at the given opaque path.
func (f *Facade) GetTranscript(ctx context.Context, path string) (io.ReadCloser, error) {
	return f.backend.Get(ctx, path)
}

// DeleteTranscript removes a video's transcript directory idempotently.
func (f *Facade) DeleteTranscript(ctx context.Context, userID, videoID string) (bool, error) {
	dir := transcriptDir(userID, videoID)
	entries, err := f.backend.WalkRoot(ctx, dir)
	if err != nil {
		return false, err
	}
	if err := f.backend.DeletePrefix(ctx, dir); err != nil {
		return false, fmt.Errorf("delete transcript: %w", err)
	}
	return len(entries) > 0, nil
}

// UsageMB walks both the audio and transcript roots for a user and
// returns total usage in MB (spec §4.1).
func (f *Facade) UsageMB(ctx context.Context, userID string) (float64, error) {
	var total int64
	for _, root := range []string{fmt.Sprintf("audio/%s/", userID), fmt.Sprintf("transcripts/%s/", userID)} {
		entries, err := f.backend.WalkRoot(ctx, root)
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			total += e.Size
		}
	}
	return float64(total) / (1024 * 1024), nil
}

// Exists reports whether the object at an opaque path is present.
func (f *Facade) Exists(ctx context.Context, path string) (bool, error) {
	return f.backend.Exists(ctx, path)
}

// Size reports the byte size of the object at an opaque path.
func (f *Facade) Size(ctx context.Context, path string) (int64, error) {
	return f.backend.Size(ctx, path)
}

// WalkAllUserDirs lists every (user, video) directory present under
// both roots, used by orphan-file GC (§4.12.2) to find directories
// with no corresponding Video row.
func (f *Facade) WalkAllUserDirs(ctx context.Context) ([]Entry, error) {
	var all []Entry
	for _, root := range []string{"audio/", "transcripts/"} {
		entries, err := f.backend.WalkRoot(ctx, root)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// DeletePrefix removes every object under an arbitrary prefix; used
// directly by orphan-file GC once it has identified a dangling
// (user, video) directory.
func (f *Facade) DeletePrefix(ctx context.Context, prefix string) error {
	return f.backend.DeletePrefix(ctx, prefix)
}
