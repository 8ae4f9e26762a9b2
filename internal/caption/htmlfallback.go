package caption

import (
	"context"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
)

// fetchOpenGraphFallback scrapes a video page's OpenGraph meta tags
// when yt-dlp's structured extraction fails outright (private/region
// blocked pages still often render public OG tags). This only fills
// title/description/thumbnail; duration and chapters are unavailable
// from HTML alone.
func (d *Downloader) fetchOpenGraphFallback(ctx context.Context, url string) (VideoInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return VideoInfo{}, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("fetch video page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("parse video page: %w", err)
	}

	meta := func(property string) string {
		val, _ := doc.Find(fmt.Sprintf(`meta[property="%s"]`, property)).Attr("content")
		return val
	}

	info := VideoInfo{
		Title:        meta("og:title"),
		Description:  meta("og:description"),
		ThumbnailURL: meta("og:image"),
	}
	if info.Title == "" {
		return VideoInfo{}, fmt.Errorf("no OpenGraph metadata found")
	}
	return info, nil
}
