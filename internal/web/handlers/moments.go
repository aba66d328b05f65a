package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/photo-moments/internal/clustering"
	"github.com/kozaktomas/photo-moments/internal/jobs"
	"github.com/kozaktomas/photo-moments/internal/media"
	"github.com/kozaktomas/photo-moments/internal/moments"
	"github.com/kozaktomas/photo-moments/internal/prompt"
)

// MomentsHandler serves clusters and controls the background clustering job.
type MomentsHandler struct {
	organizer *moments.Organizer
	retry     clustering.RetryOptions
}

// NewMomentsHandler creates a moments handler. retry configures how streams
// resubscribe after failed runs.
func NewMomentsHandler(organizer *moments.Organizer, retry clustering.RetryOptions) *MomentsHandler {
	return &MomentsHandler{organizer: organizer, retry: retry}
}

// StartJobRequest is the body of a job start request.
type StartJobRequest struct {
	Prompt string `json:"prompt"`
}

// StartJobResponse reports whether a new run was enqueued.
type StartJobResponse struct {
	ID       string     `json:"id"`
	Enqueued bool       `json:"enqueued"`
	State    jobs.State `json:"state"`
}

// SnapshotResponse is the cached result of one prompt's pipeline.
type SnapshotResponse struct {
	Prompt     string          `json:"prompt"`
	Categories []string        `json:"categories"`
	Clusters   []media.Cluster `json:"clusters"`
}

// SaveRequest is the body of a cluster save request.
type SaveRequest struct {
	Title string `json:"title"`
}

// SaveResponse reports how many items were added to the album.
type SaveResponse struct {
	Key   int64 `json:"key"`
	Saved int   `json:"saved"`
}

// StartJob enqueues a clustering run unless one is already pending.
func (h *MomentsHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	id, enqueued := h.organizer.Jobs().Start(req.Prompt)
	log.Info().Str("prompt", sanitizeForLog(req.Prompt)).Bool("enqueued", enqueued).Msg("clustering job requested")

	status, err := h.organizer.Jobs().CurrentStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, StartJobResponse{ID: id, Enqueued: enqueued, State: status.State})
}

// CancelJob cancels the unfinished clustering run, if any.
func (h *MomentsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	h.organizer.Jobs().Cancel()

	status, err := h.organizer.Jobs().CurrentStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, status)
}

// JobStatus returns the current state of the clustering job.
func (h *MomentsHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.organizer.Jobs().CurrentStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// JobEvents streams a "status" event whenever the job status changes, until
// the client disconnects.
func (h *MomentsHandler) JobEvents(w http.ResponseWriter, r *http.Request) {
	stream, ok := startSSE(w)
	if !ok {
		return
	}

	for status := range h.organizer.Jobs().ObserveStatus(r.Context()) {
		if err := stream.send("status", status); err != nil {
			return
		}
	}
}

// Snapshot returns the cached clusters for the prompt in the query.
func (h *MomentsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	spec := prompt.Interpret(r.URL.Query().Get("prompt"))

	clusters, err := h.organizer.Snapshot(spec)
	if errors.Is(err, moments.ErrNoSnapshot) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, SnapshotResponse{Prompt: spec.Key(), Categories: categoryNames(spec), Clusters: clusters})
}

// Stream computes or replays the clusters for the prompt in the query and
// sends each as a "cluster" event, followed by "done" or "error". A "retry"
// event announces that delivery restarts from the first cluster.
func (h *MomentsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	promptText := r.URL.Query().Get("prompt")

	stream, ok := startSSE(w)
	if !ok {
		return
	}

	opts := h.retry
	opts.OnRetry = func(err error, wait time.Duration) {
		_ = stream.send("retry", map[string]any{"error": err.Error(), "wait_ms": wait.Milliseconds()})
	}

	count := 0
	err := h.organizer.StreamClustersWithRetry(r.Context(), promptText, func(c media.Cluster) error {
		count++
		return stream.send("cluster", c)
	}, opts)

	switch {
	case err == nil:
		_ = stream.send("done", map[string]int{"clusters": count})
	case r.Context().Err() != nil:
		log.Debug().Msg("moments stream client disconnected")
	default:
		log.Warn().Err(err).Str("prompt", sanitizeForLog(promptText)).Msg("moments stream failed")
		_ = stream.send("error", map[string]string{"error": err.Error()})
	}
}

// Save writes one cluster of the prompt's snapshot as an album.
func (h *MomentsHandler) Save(w http.ResponseWriter, r *http.Request) {
	key, err := strconv.ParseInt(chi.URLParam(r, "key"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid cluster key")
		return
	}

	var req SaveRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	spec := prompt.Interpret(r.URL.Query().Get("prompt"))
	saved, err := h.organizer.SaveCluster(r.Context(), spec, key, req.Title)
	switch {
	case errors.Is(err, moments.ErrNoSnapshot), errors.Is(err, moments.ErrClusterNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, moments.ErrSaveInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, moments.ErrNoAlbumWriter):
		respondError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondJSON(w, http.StatusOK, SaveResponse{Key: key, Saved: len(saved)})
	}
}

// InterpretResponse lists the categories a prompt selects.
type InterpretResponse struct {
	Prompt     string   `json:"prompt"`
	Key        string   `json:"key"`
	Categories []string `json:"categories"`
}

// Interpret shows how a prompt is understood without running anything.
func Interpret(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("prompt")
	spec := prompt.Interpret(text)

	respondJSON(w, http.StatusOK, InterpretResponse{Prompt: text, Key: spec.Key(), Categories: categoryNames(spec)})
}

func categoryNames(spec *prompt.Spec) []string {
	names := []string{}
	if spec.Empty() {
		return names
	}
	for _, c := range spec.Categories {
		names = append(names, string(c))
	}
	return names
}
