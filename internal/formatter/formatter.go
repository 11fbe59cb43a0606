// package formatter renders user-facing notification text and exports playlist membership (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/shared"
)

// Message returns the text shown to a requester for an error code.
func Message(code models.ErrorCode) string {
	switch code {
	case models.CodeNone:
		return "Your video is ready."
	case models.CodeUnauthorized:
		return "This video requires authorization on the source platform and cannot be downloaded."
	case models.CodeBadRequest:
		return "This video cannot be downloaded."
	case models.CodeTooLarge:
		return "This video is larger than the allowed download size."
	case models.CodeNotFound:
		return "This video is unavailable or was removed."
	default:
		return "An unexpected error occurred while downloading this video."
	}
}

// Caption links the video, and the playlist it came from when there is one, as Markdown.
func Caption(videoURL, playlistURL string) string {
	var b strings.Builder
	if videoURL != "" {
		fmt.Fprintf(&b, "[Video](%s)", videoURL)
	}
	if playlistURL != "" {
		if b.Len() > 0 {
			b.WriteString(" from ")
		}
		fmt.Fprintf(&b, "[playlist](%s)", playlistURL)
	}
	return b.String()
}

// Notification builds what requesterID receives for a download result.
func Notification(result models.DownloadResult, requesterID, requestRef, videoURL, playlistURL string) models.Notification {
	n := models.Notification{
		RequesterID: requesterID,
		RequestRef:  requestRef,
		Platform:    result.Platform,
		VideoID:     result.VideoID,
		VideoURL:    videoURL,
		PlaylistURL: playlistURL,
		ErrorCode:   result.ErrorCode,
		Text:        Message(result.ErrorCode),
	}

	if !result.Failed() {
		n.ArtifactRef = result.ArtifactRef
		if caption := Caption(videoURL, playlistURL); caption != "" {
			n.Text = caption
		}
	}
	return n
}

// ExportToCSV converts a PlaylistExport to CSV format with columns: Sequence, Platform, VideoID, Cached, ArtifactRef
func ExportToCSV(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Sequence", "Platform", "VideoID", "Cached", "ArtifactRef"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, video := range export.Videos {
		record := []string{
			strconv.Itoa(video.Sequence),
			video.Key.Platform,
			video.Key.ID,
			strconv.FormatBool(video.Cached()),
			video.ArtifactRef,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a PlaylistExport to Markdown format
func ExportToMarkdown(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Playlist.Key)
	fmt.Fprintf(&buf, "**Videos**: %d\n", len(export.Videos))
	fmt.Fprintf(&buf, "**Cached**: %d\n", cachedCount(export.Videos))
	fmt.Fprintf(&buf, "**Subscribers**: %d\n", len(export.Subscribers))
	fmt.Fprintf(&buf, "**Status**: %s\n\n", status(export.Playlist))

	buf.WriteString("## Videos\n\n")
	for i, video := range export.Videos {
		mark := " "
		if video.Cached() {
			mark = "x"
		}
		fmt.Fprintf(&buf, "%d. [%s] %s\n", i+1, mark, video.Key.ID)
	}

	return buf.Bytes(), nil
}

// ExportToText converts a PlaylistExport to plain text format
func ExportToText(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", export.Playlist.Key)
	fmt.Fprintf(&buf, "Status: %s\n", status(export.Playlist))
	fmt.Fprintf(&buf, "Videos: %d\n\n", len(export.Videos))

	for i, video := range export.Videos {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, video.Key.ID)
	}

	return buf.Bytes(), nil
}

type exportVideo struct {
	Sequence    int    `json:"sequence"`
	VideoID     string `json:"video_id"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
}

type exportDocument struct {
	Platform    string        `json:"platform"`
	PlaylistID  string        `json:"playlist_id"`
	Updating    bool          `json:"is_updating"`
	Subscribers []string      `json:"subscribers"`
	Videos      []exportVideo `json:"videos"`
}

// ExportToJSON converts a PlaylistExport to indented JSON
func ExportToJSON(export *models.PlaylistExport) ([]byte, error) {
	doc := exportDocument{
		Platform:    export.Playlist.Key.Platform,
		PlaylistID:  export.Playlist.Key.ID,
		Updating:    export.Playlist.Updating,
		Subscribers: export.Subscribers,
		Videos:      make([]exportVideo, 0, len(export.Videos)),
	}
	if doc.Subscribers == nil {
		doc.Subscribers = []string{}
	}
	for _, v := range export.Videos {
		doc.Videos = append(doc.Videos, exportVideo{Sequence: v.Sequence, VideoID: v.Key.ID, ArtifactRef: v.ArtifactRef})
	}
	return shared.MarshalJSON(doc, true)
}

// Formats lists the export formats accepted by [Export].
var Formats = []string{"csv", "markdown", "txt", "json"}

// Export renders export in format.
func Export(export *models.PlaylistExport, format string) ([]byte, error) {
	switch format {
	case "csv":
		return ExportToCSV(export)
	case "markdown", "md":
		return ExportToMarkdown(export)
	case "txt", "text":
		return ExportToText(export)
	case "json":
		return ExportToJSON(export)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, format)
	}
}

// WriteExport renders export in format and writes it to path.
//
// Defaults to {platform}_{playlist id}.{ext} as the filename.
func WriteExport(export *models.PlaylistExport, format, path string) (string, error) {
	data, err := Export(export, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = fmt.Sprintf("%s_%s.%s", export.Playlist.Key.Platform, export.Playlist.Key.ID, extension(format))
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

func extension(format string) string {
	switch format {
	case "markdown", "md":
		return "md"
	case "txt", "text":
		return "txt"
	default:
		return format
	}
}

func cachedCount(videos []*models.Video) int {
	n := 0
	for _, v := range videos {
		if v.Cached() {
			n++
		}
	}
	return n
}

func status(p *models.Playlist) string {
	if p.Updating {
		return "refreshing"
	}
	return "idle"
}
