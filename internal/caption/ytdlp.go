package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/vidknora/vidknora/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Downloader wraps the yt-dlp CLI. No Go-native YouTube extraction
// library appears anywhere in the retrieved pack, so this backend
// shells out to the external yt-dlp binary the same way the original
// Python implementation delegates to the yt-dlp library (spec §4.6).
type Downloader struct {
	binary string
	client *http.Client
}

// NewDownloader constructs a Downloader invoking the given yt-dlp
// binary path (or "yt-dlp" from PATH).
func NewDownloader(binary string) *Downloader {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Downloader{binary: binary, client: &http.Client{Timeout: 60 * time.Second}}
}

type ytDlpChapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type ytDlpInfo struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Uploader    string         `json:"uploader"`
	ChannelID   string         `json:"channel_id"`
	Thumbnail   string         `json:"thumbnail"`
	Duration    float64        `json:"duration"`
	UploadDate  string         `json:"upload_date"`
	ViewCount   int64          `json:"view_count"`
	LikeCount   int64          `json:"like_count"`
	Language    string         `json:"language"`
	Chapters    []ytDlpChapter `json:"chapters"`
}

// GetVideoInfo extracts metadata without downloading (spec §4.6
// `get_video_info`).
func (d *Downloader) GetVideoInfo(ctx context.Context, url string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, d.binary, "--dump-json", "--no-warnings", "--skip-download", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if fallback, fbErr := d.fetchOpenGraphFallback(ctx, url); fbErr == nil {
			return fallback, nil
		}
		return VideoInfo{}, fmt.Errorf("yt-dlp info: %w: %s", err, stderr.String())
	}

	var raw ytDlpInfo
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return VideoInfo{}, fmt.Errorf("parse yt-dlp info: %w", err)
	}

	var uploadDate *time.Time
	if raw.UploadDate != "" {
		if t, err := time.Parse("20060102", raw.UploadDate); err == nil {
			uploadDate = &t
		}
	}

	chapters := make([]Chapter, 0, len(raw.Chapters))
	for i, c := range raw.Chapters {
		title := c.Title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		chapters = append(chapters, Chapter{Title: title, StartTime: c.StartTime, EndTime: c.EndTime})
	}

	return VideoInfo{
		SourceID:        raw.ID,
		Title:           raw.Title,
		Description:     raw.Description,
		ChannelName:     raw.Uploader,
		ChannelID:       raw.ChannelID,
		ThumbnailURL:    raw.Thumbnail,
		DurationSeconds: raw.Duration,
		UploadDate:      uploadDate,
		ViewCount:       raw.ViewCount,
		LikeCount:       raw.LikeCount,
		Language:        raw.Language,
		Chapters:        chapters,
	}, nil
}

// ProgressFunc reports download/transcription progress in [0,1].
type ProgressFunc func(fraction float64)

// clientProfile is one yt-dlp invocation strategy; DownloadAudio tries
// each in order until one succeeds (spec §4.6 "multiple client
// profiles and format fallbacks; retry with different strategies
// before giving up").
type clientProfile struct {
	extractorArgs string
	format        string
}

var clientProfiles = []clientProfile{
	{extractorArgs: "youtube:player_client=android", format: "bestaudio/best"},
	{extractorArgs: "youtube:player_client=ios", format: "bestaudio/best"},
	{extractorArgs: "youtube:player_client=web", format: "worstaudio/worst"},
}

// DownloadAudio downloads the best-effort audio track to destDir,
// trying each client profile until one succeeds, and returns its path
// and size in MB (spec §4.6 `download_audio`).
func (d *Downloader) DownloadAudio(ctx context.Context, url, destDir string, onProgress ProgressFunc) (string, float64, error) {
	outputTemplate := filepath.Join(destDir, "audio.%(ext)s")

	var lastErr error
	for _, profile := range clientProfiles {
		args := []string{
			"--no-warnings",
			"--extractor-args", profile.extractorArgs,
			"-f", profile.format,
			"-x", "--audio-format", "mp3",
			"-o", outputTemplate,
			url,
		}
		cmd := exec.CommandContext(ctx, d.binary, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			lastErr = fmt.Errorf("yt-dlp download (%s): %w: %s", profile.extractorArgs, err, stderr.String())
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(destDir, "audio.*"))
		if len(matches) == 0 {
			lastErr = fmt.Errorf("yt-dlp download (%s): no output file produced", profile.extractorArgs)
			continue
		}
		if onProgress != nil {
			onProgress(1.0)
		}
		mb, err := fileSizeMB(matches[0])
		if err != nil {
			return "", 0, fmt.Errorf("stat downloaded audio: %w", err)
		}
		return matches[0], mb, nil
	}
	return "", 0, fmt.Errorf("all client profiles exhausted: %w", lastErr)
}

type subtitleProbe struct {
	content string
	lang    string
}

// GetCaptions probes manual subtitles and auto-captions concurrently,
// then prefers manual over auto per spec §4.6 ("tries manual
// subtitles first, then auto-captions"); downloads the VTT track and
// parses it.
func (d *Downloader) GetCaptions(ctx context.Context, url string, preferredLangs []string) (*Transcript, error) {
	probes := make([]subtitleProbe, 2) // [0]=manual, [1]=auto
	g, gctx := errgroup.WithContext(ctx)
	for i, writeAuto := range []bool{false, true} {
		i, writeAuto := i, writeAuto
		g.Go(func() error {
			content, lang, err := d.fetchSubtitleVTT(gctx, url, preferredLangs, writeAuto)
			if err != nil {
				logger.GetLogger(ctx).Warnf("subtitle fetch failed (auto=%v): %v", writeAuto, err)
				return nil
			}
			probes[i] = subtitleProbe{content: content, lang: lang}
			return nil
		})
	}
	_ = g.Wait()

	for _, probe := range probes {
		if probe.content == "" {
			continue
		}
		segments := ParseVTT(probe.content)
		if len(segments) == 0 {
			continue
		}
		words, duration := statsFromSegments(segments)
		return &Transcript{
			Segments:  segments,
			FullText:  segmentsToFullText(segments),
			Language:  probe.lang,
			WordCount: words,
			Duration:  duration,
		}, nil
	}
	return nil, nil
}

func (d *Downloader) fetchSubtitleVTT(ctx context.Context, url string, langs []string, auto bool) (string, string, error) {
	destDir, err := os.MkdirTemp("", "captions-*")
	if err != nil {
		return "", "", err
	}
	defer os.RemoveAll(destDir)
	langArg := "en"
	if len(langs) > 0 {
		langArg = langs[0]
	}
	args := []string{"--no-warnings", "--skip-download", "--sub-format", "vtt", "--sub-langs", langArg}
	if auto {
		args = append(args, "--write-auto-sub")
	} else {
		args = append(args, "--write-sub")
	}
	outputTemplate := filepath.Join(destDir, "captions.%(ext)s")
	args = append(args, "-o", outputTemplate, url)

	cmd := exec.CommandContext(ctx, d.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", "", fmt.Errorf("yt-dlp subtitles: %w: %s", err, stderr.String())
	}

	matches, _ := filepath.Glob(filepath.Join(destDir, "captions*.vtt"))
	if len(matches) == 0 {
		return "", "", nil
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return "", "", err
	}
	return string(data), langArg, nil
}

func fileSizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(info.Size()) / (1024 * 1024), nil
}
