package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"audioscribe/core/pipeline"
	"audioscribe/logger"
	"audioscribe/model"
	"audioscribe/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// APIHandler 处理所有API请求
type APIHandler struct {
	orch    *pipeline.Orchestrator
	status  *store.StatusStore
	results *store.ResultStore
	lister  pipeline.Lister
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	orch *pipeline.Orchestrator,
	status *store.StatusStore,
	results *store.ResultStore,
	lister pipeline.Lister,
) *APIHandler {
	return &APIHandler{
		orch:    orch,
		status:  status,
		results: results,
		lister:  lister,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ProcessHandler triggers a synchronous batch run. The caller blocks until
// the run completes, which may take a long time for large listings.
func (h *APIHandler) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orch.Run(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrUpstreamUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		// Fatal abort mid-run; already-updated items keep their state.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"partial": summary,
		})
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

// ProcessAsyncHandler triggers a fire-and-forget run and returns the
// pre-computed counts immediately.
func (h *APIHandler) ProcessAsyncHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := h.orch.RunAsync(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrUpstreamUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, counts)
	}
}

// itemView is one row of the item listing: upstream metadata merged with the
// stored processing state. Items never selected for processing read as
// pending.
type itemView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description,omitempty"`
	UploadTime  string `json:"uploadTime"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

func (h *APIHandler) itemState(id string) (model.StatusEntry, model.State) {
	entry, ok := h.status.Get(id)
	if !ok {
		return model.StatusEntry{}, model.StatePending
	}
	return entry, entry.State
}

func viewOf(item model.Item, entry model.StatusEntry, state model.State) itemView {
	v := itemView{
		ID:          item.ID,
		Title:       item.Title,
		Author:      item.Author,
		Description: item.Description,
		UploadTime:  item.UploadTime.Format(time.RFC3339),
		Status:      string(state),
	}
	if state == model.StateFailed {
		v.Error = entry.Error
	}
	if !entry.UpdatedAt.IsZero() {
		v.UpdatedAt = entry.UpdatedAt.Format(time.RFC3339)
	}
	return v
}

// ListItemsHandler returns the paginated item listing, optionally filtered by
// processing state. Metadata comes fresh from the upstream store on every
// call.
func (h *APIHandler) ListItemsHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = v
	}

	pageSize := defaultPageSize
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "invalid pageSize")
			return
		}
		if v > maxPageSize {
			v = maxPageSize
		}
		pageSize = v
	}

	var filter model.State
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter = model.State(raw)
		if !filter.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}

	items, err := h.lister.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream listing unavailable")
		return
	}

	views := make([]itemView, 0, len(items))
	for _, item := range items {
		entry, state := h.itemState(item.ID)
		if filter != "" && state != filter {
			continue
		}
		views = append(views, viewOf(item, entry, state))
	}

	total := len(views)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"items":    views[start:end],
	})
}

// ItemDetailHandler returns one item's merged detail, 404 for identifiers the
// upstream store does not know.
func (h *APIHandler) ItemDetailHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	items, err := h.lister.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream listing unavailable")
		return
	}

	for _, item := range items {
		if item.ID != id {
			continue
		}
		entry, state := h.itemState(id)
		detail := map[string]any{
			"item":   viewOf(item, entry, state),
			"status": string(state),
		}
		if state == model.StateCompleted {
			if transcript, ok, err := h.results.Get(id); err == nil && ok {
				detail["transcript"] = transcript
			}
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}

	writeError(w, http.StatusNotFound, "unknown item")
}

// ItemResultHandler reports processing state and, once completed, the
// transcript. Identifiers never seen read as pending rather than erroring, so
// callers can poll before the first run.
func (h *APIHandler) ItemResultHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	entry, ok := h.status.Get(id)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.StatePending)})
		return
	}

	switch entry.State {
	case model.StatePending, model.StateProcessing:
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(entry.State)})
	case model.StateFailed:
		writeJSON(w, http.StatusOK, map[string]string{
			"id":     id,
			"status": string(model.StateFailed),
			"error":  entry.Error,
		})
	case model.StateCompleted:
		transcript, found, err := h.results.Get(id)
		if errors.Is(err, store.ErrBadItemID) {
			writeError(w, http.StatusNotFound, "unknown item")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read transcript: "+err.Error())
			return
		}
		if !found {
			// Completed without a transcript violates the store invariant.
			logger.Error("completed item has no transcript", logger.String("id", id))
			writeError(w, http.StatusInternalServerError, "transcript missing")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":         id,
			"status":     string(model.StateCompleted),
			"transcript": transcript,
		})
	}
}

// StatsHandler returns aggregate counts per state plus the success rate
// completed/(completed+failed), 0 when nothing finished yet.
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := h.status.Snapshot()

	counts := map[model.State]int{}
	for _, entry := range snapshot.Items {
		counts[entry.State]++
	}

	completed := counts[model.StateCompleted]
	failed := counts[model.StateFailed]
	successRate := 0.0
	if completed+failed > 0 {
		successRate = float64(completed) / float64(completed+failed)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":       len(snapshot.Items),
		"pending":     counts[model.StatePending],
		"processing":  counts[model.StateProcessing],
		"completed":   completed,
		"failed":      failed,
		"successRate": successRate,
		"lastUpdated": snapshot.LastUpdated,
	})
}

// HealthHandler 健康检查
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"running": h.orch.Running(),
	})
}
