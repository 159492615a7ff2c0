package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"pricewatch/logger"
	"pricewatch/metrics"
	"pricewatch/models"
	"pricewatch/scheduler"
	"pricewatch/services"
)

type Handlers struct {
	tracker     *services.Tracker
	taskManager *scheduler.TaskManager
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

func NewHandlers(tracker *services.Tracker, taskManager *scheduler.TaskManager, m *metrics.Metrics, log *zap.Logger) *Handlers {
	return &Handlers{
		tracker:     tracker,
		taskManager: taskManager,
		metrics:     m,
		log:         logger.OrNop(log),
		now:         time.Now,
	}
}

// Register mounts every route on r. Fixed paths under /api/items are
// registered before the {id} patterns.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/api/health", h.HealthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	api.HandleFunc("/items", h.CreateItem).Methods(http.MethodPost)
	api.HandleFunc("/items/reorder", h.ReorderItems).Methods(http.MethodPost)
	api.HandleFunc("/items/updateAll", h.UpdateAll).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}", h.UpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}", h.DeleteItem).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/sites", h.AddSite).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}/sites/{siteId}", h.DeleteSite).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/update", h.RefreshItem).Methods(http.MethodPost)

	api.HandleFunc("/settings", h.ListSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.UpsertSetting).Methods(http.MethodPost)
	api.HandleFunc("/settings/domains", h.ListSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings/domains", h.ReplaceSettings).Methods(http.MethodPost)
	api.HandleFunc("/settings/{domain}", h.DeleteSetting).Methods(http.MethodDelete)

	api.HandleFunc("/tasks/stats", h.GetTaskStats).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskId}", h.GetTaskStatus).Methods(http.MethodGet)

	api.HandleFunc("/fetch", h.Probe).Methods(http.MethodPost)
}

// HealthCheck returns a simple health check response
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":  true,
		"now": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// ListItems returns all items ordered by position
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.tracker.ListItems(r.Context())
	if err != nil {
		h.fail(w, "list items", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateItem adds an item. Without a name the first URL's title is fetched.
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req services.CreateItemInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := h.tracker.CreateItem(r.Context(), req)
	if err != nil {
		h.fail(w, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// UpdateItem patches name, position, image or the URL list
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateItemInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := h.tracker.UpdateItem(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, "update item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem removes an item. Deleting an unknown item still answers 204.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.tracker.DeleteItem(r.Context(), id); err != nil && !errors.Is(err, services.ErrItemNotFound) {
		h.fail(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddSite appends a site to an item
func (h *Handlers) AddSite(w http.ResponseWriter, r *http.Request) {
	var req services.SiteInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := h.tracker.AddSite(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, "add site", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteSite removes a site from an item
func (h *Handlers) DeleteSite(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	item, err := h.tracker.DeleteSite(r.Context(), vars["id"], vars["siteId"])
	if err != nil {
		h.fail(w, "delete site", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ReorderItems moves an item up, down or to the top
func (h *Handlers) ReorderItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string                  `json:"id"`
		Direction models.ReorderDirection `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	count, err := h.tracker.Reorder(r.Context(), req.ID, req.Direction)
	if err != nil {
		h.fail(w, "reorder items", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"itemsCount": count,
	})
}

// RefreshItem fetches fresh prices for one item. With ?async=true it only
// queues the task and answers 202.
func (h *Handlers) RefreshItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.tracker.GetItem(r.Context(), id); err != nil {
		h.fail(w, "refresh item", err)
		return
	}

	task := h.taskManager.Submit(models.TaskRefreshItem, id)
	if isAsync(r) {
		writeAccepted(w, task)
		return
	}

	if _, ok := h.wait(w, r, task); !ok {
		return
	}
	item, err := h.tracker.GetItem(r.Context(), id)
	if err != nil {
		h.fail(w, "refresh item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// UpdateAll refreshes every item
func (h *Handlers) UpdateAll(w http.ResponseWriter, r *http.Request) {
	task := h.taskManager.Submit(models.TaskRefreshAll, "")
	if isAsync(r) {
		writeAccepted(w, task)
		return
	}

	task, ok := h.wait(w, r, task)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "updated all",
		"summary": task.Summary,
	})
}

// wait blocks on a submitted task and writes the error response when it did
// not complete. It reports whether the caller should continue.
func (h *Handlers) wait(w http.ResponseWriter, r *http.Request, task models.UpdateTask) (models.UpdateTask, bool) {
	done, err := h.taskManager.Wait(r.Context(), task.ID)
	if err != nil {
		h.log.Warn("request gave up waiting for task", zap.String("task_id", task.ID), zap.Error(err))
		writeJSON(w, http.StatusAccepted, taskResponse(done, "Refresh still running"))
		return done, false
	}
	if done.Status == models.TaskStatusFailed {
		h.log.Warn("refresh task failed", zap.String("task_id", done.ID), zap.String("error", done.Error))
		writeError(w, http.StatusInternalServerError, done.Error)
		return done, false
	}
	return done, true
}

// ListSettings returns all domain settings
func (h *Handlers) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.tracker.ListDomainSettings(r.Context())
	if err != nil {
		h.fail(w, "list settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ReplaceSettings replaces the whole domain settings list
func (h *Handlers) ReplaceSettings(w http.ResponseWriter, r *http.Request) {
	var req []models.DomainSetting
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "expected array")
		return
	}

	settings, err := h.tracker.ReplaceDomainSettings(r.Context(), req)
	if err != nil {
		h.fail(w, "replace settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpsertSetting saves or updates a single domain
func (h *Handlers) UpsertSetting(w http.ResponseWriter, r *http.Request) {
	var req models.DomainSetting
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := h.tracker.UpsertDomainSetting(r.Context(), req)
	if err != nil {
		h.fail(w, "save setting", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "saved",
		"settings": settings,
	})
}

// DeleteSetting removes a domain
func (h *Handlers) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	settings, err := h.tracker.DeleteDomainSetting(r.Context(), mux.Vars(r)["domain"])
	if err != nil {
		h.fail(w, "delete setting", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "deleted",
		"settings": settings,
	})
}

// GetTaskStatus returns the status of an async task
func (h *Handlers) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, exists := h.taskManager.GetTask(mux.Vars(r)["taskId"])
	if !exists {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// GetTaskStats returns statistics about the task manager
func (h *Handlers) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     h.taskManager.GetStats(),
		"timestamp": h.now(),
	})
}

// Probe runs a one-off extraction and returns the raw result
func (h *Handlers) Probe(w http.ResponseWriter, r *http.Request) {
	var req services.ProbeInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.tracker.Probe(r.Context(), req)
	if err != nil {
		h.fail(w, "probe", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// fail maps service errors onto status codes
func (h *Handlers) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, services.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, services.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, "Site not found")
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isAsync(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("async"))
	return err == nil && v
}

func taskResponse(task models.UpdateTask, message string) map[string]interface{} {
	return map[string]interface{}{
		"task_id": task.ID,
		"status":  task.Status,
		"message": message,
		"task":    task,
	}
}

func writeAccepted(w http.ResponseWriter, task models.UpdateTask) {
	status := http.StatusAccepted
	msg := "Refresh queued for processing"
	if task.Status == models.TaskStatusFailed {
		status = http.StatusServiceUnavailable
		msg = task.Error
	}
	writeJSON(w, status, taskResponse(task, msg))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
