package journal

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/polaris-wellness/polaris/backend/internal/service/journal"
	"github.com/polaris-wellness/polaris/backend/pkg/utils"
)

// Handler serves the journal and community endpoints.
type Handler struct {
	svc *journal.Service
}

func New(svc *journal.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the journal routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/journal", h.handleSave)
	r.Get("/journals/{userID}", h.handleListByUser)
	r.Get("/public_journals", h.handleListPublic)
	r.Get("/suggestion/{userID}", h.handleSuggestion)
}

type saveRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Visibility string `json:"visibility"`
	UserID     string `json:"user_id"`
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	visibility, err := h.svc.Save(r.Context(), journal.Entry{
		UserID:     req.UserID,
		Title:      req.Title,
		Content:    req.Content,
		Visibility: req.Visibility,
	})
	if err != nil {
		logrus.Errorf("[journal] save failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to save journal")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":           "ok",
		"final_visibility": visibility,
	})
}

func (h *Handler) handleListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	entries, err := h.svc.ListByUser(r.Context(), userID)
	if err != nil {
		logrus.Errorf("[journal] listing journals for user %s failed: %v", userID, err)
		utils.RespondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to fetch journals",
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"journals": entriesOrEmpty(entries),
	})
}

func (h *Handler) handleListPublic(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListPublic(r.Context())
	if err != nil {
		logrus.Errorf("[journal] listing public journals failed: %v", err)
		utils.RespondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to fetch public journals",
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"journals": entriesOrEmpty(entries),
	})
}

func (h *Handler) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"suggestion": h.svc.Suggestion(r.Context(), userID),
	})
}

// entriesOrEmpty keeps the journals field a JSON array, never null.
func entriesOrEmpty(entries []journal.Entry) []journal.Entry {
	if entries == nil {
		return []journal.Entry{}
	}
	return entries
}
