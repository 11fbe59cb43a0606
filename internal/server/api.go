package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/shared"
	"github.com/desertthunder/tubeq/internal/tasks"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Pipeline is the request side of the pipeline. [tasks.Router] implements it.
type Pipeline interface {
	SubmitDownload(ctx context.Context, rawURL string, req tasks.Requester) (*tasks.Submission, error)
	SubmitPlaylistSubscription(ctx context.Context, rawURL string, req tasks.Requester) (*tasks.Subscription, error)
	Unsubscribe(ctx context.Context, rawURL string, requesterID string) (bool, error)
	RefreshPlaylist(ctx context.Context, rawURL string, upload bool) (models.PlaylistKey, bool, error)
	Subscriptions(ctx context.Context, requesterID string) ([]tasks.SubscribedPlaylist, error)
}

// ChatID is an opaque requester id. Chat front-ends send it as a number or a string.
type ChatID string

func (c *ChatID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ChatID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("chat_id must be a string or a number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("chat_id must be an integer: %w", err)
	}
	*c = ChatID(n.String())
	return nil
}

// DownloadRequest is the body of POST /api/download/start.
type DownloadRequest struct {
	URL       string `json:"url"`
	ChatID    ChatID `json:"chat_id"`
	MessageID ChatID `json:"message_id"`
}

// PlaylistRequest is the body of the playlist endpoints.
type PlaylistRequest struct {
	URL    string `json:"url"`
	ChatID ChatID `json:"chat_id"`
	Upload *bool  `json:"upload,omitempty"`
}

// DownloadResponse acknowledges an accepted download.
type DownloadResponse struct {
	Status   string `json:"status"`
	Platform string `json:"platform"`
	VideoID  string `json:"video_id"`
	URL      string `json:"url"`
}

// SubscriptionResponse acknowledges a playlist subscription.
type SubscriptionResponse struct {
	Platform   string `json:"platform"`
	PlaylistID string `json:"playlist_id"`
	Created    bool   `json:"created"`
	Subscribed bool   `json:"subscribed"`
	Refreshing bool   `json:"refreshing"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// API serves the pipeline endpoints:
//
//	GET  /                      health
//	POST /api/download/start    {url, chat_id, message_id}
//	POST /api/playlist/add      {url, chat_id}
//	POST /api/playlist/remove   {url, chat_id}
//	POST /api/playlist/refresh  {url, upload}
//	GET  /api/playlists?chat_id=
type API struct {
	pipeline Pipeline
	mux      *http.ServeMux
	routes   []string
	logger   *log.Logger
}

// NewAPI creates the API handler. Register it with [Router.Handler].
func NewAPI(pipeline Pipeline, logger *log.Logger) *API {
	a := &API{pipeline: pipeline, mux: http.NewServeMux(), logger: shared.WithLogger(logger, "component", "api")}

	a.route("GET /{$}", a.health)
	a.route("POST /api/download/start", a.startDownload)
	a.route("POST /api/playlist/add", a.addPlaylist)
	a.route("POST /api/playlist/remove", a.removePlaylist)
	a.route("POST /api/playlist/refresh", a.refreshPlaylist)
	a.route("GET /api/playlists", a.listPlaylists)
	return a
}

func (a *API) route(pattern string, fn http.HandlerFunc) {
	a.mux.HandleFunc(pattern, fn)
	a.routes = append(a.routes, pattern)
}

// Routes implements [Handler].
func (a *API) Routes() []string { return append([]string(nil), a.routes...) }

// ServeHTTP implements [Handler].
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) { a.mux.ServeHTTP(w, r) }

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	a.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) startDownload(w http.ResponseWriter, r *http.Request) {
	var body DownloadRequest
	if !a.decode(w, r, &body) {
		return
	}

	sub, err := a.pipeline.SubmitDownload(r.Context(), body.URL, tasks.Requester{ID: string(body.ChatID), Ref: string(body.MessageID)})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	status := "queued"
	if sub.Cached {
		status = "cached"
	}
	a.respond(w, http.StatusOK, DownloadResponse{Status: status, Platform: sub.Video.Platform, VideoID: sub.Video.ID, URL: sub.URL})
}

func (a *API) addPlaylist(w http.ResponseWriter, r *http.Request) {
	var body PlaylistRequest
	if !a.decode(w, r, &body) {
		return
	}

	sub, err := a.pipeline.SubmitPlaylistSubscription(r.Context(), body.URL, tasks.Requester{ID: string(body.ChatID)})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, http.StatusOK, SubscriptionResponse{
		Platform:   sub.Playlist.Platform,
		PlaylistID: sub.Playlist.ID,
		Created:    sub.Created,
		Subscribed: sub.Subscribed,
		Refreshing: sub.Refreshing,
	})
}

func (a *API) removePlaylist(w http.ResponseWriter, r *http.Request) {
	var body PlaylistRequest
	if !a.decode(w, r, &body) {
		return
	}

	removed, err := a.pipeline.Unsubscribe(r.Context(), body.URL, string(body.ChatID))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (a *API) refreshPlaylist(w http.ResponseWriter, r *http.Request) {
	var body PlaylistRequest
	if !a.decode(w, r, &body) {
		return
	}

	upload := true
	if body.Upload != nil {
		upload = *body.Upload
	}

	key, triggered, err := a.pipeline.RefreshPlaylist(r.Context(), body.URL, upload)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, http.StatusOK, map[string]any{
		"platform":    key.Platform,
		"playlist_id": key.ID,
		"triggered":   triggered,
	})
}

func (a *API) listPlaylists(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		a.fail(w, r, fmt.Errorf("%w: chat_id", shared.ErrMissingArgument))
		return
	}

	playlists, err := a.pipeline.Subscriptions(r.Context(), chatID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return false
	}
	return true
}

// fail maps pipeline errors onto status codes. Unknown errors are logged and hidden.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument):
		status = http.StatusBadRequest
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "err", err)
		msg = http.StatusText(status)
	}
	a.respond(w, status, ErrorResponse{Error: msg})
}

func (a *API) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := shared.WriteJSON(w, v, false); err != nil {
		a.logger.Warn("failed to write response", "err", err)
	}
}
