package httpapi

import (
	"net/http"
	"strings"

	"github.com/clicklone/clicklone/internal/app/domain/payment"
	"github.com/clicklone/clicklone/internal/app/domain/seo"
	"github.com/clicklone/clicklone/internal/app/domain/settings"
	apperrors "github.com/clicklone/clicklone/internal/errors"
)

func (h *handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	if h.app.Auth == nil {
		writeError(w, r, h.log, apperrors.Unavailable("admin login is not configured", nil))
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.app.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeUnauthorized) || apperrors.IsCode(err, apperrors.CodeForbidden) {
			h.log.LogSecurityEvent(r.Context(), "admin_login_failed", map[string]interface{}{
				"email":  strings.ToLower(strings.TrimSpace(payload.Email)),
				"remote": r.RemoteAddr,
			})
		}
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) adminAnalytics(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	summary, err := h.app.Analytics.Summary(r.Context(), days)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) adminGetSettings(w http.ResponseWriter, r *http.Request) {
	policy, err := h.app.Settings.Policy(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (h *handler) adminUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	policy, err := h.app.Settings.Update(r.Context(), patch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (h *handler) adminListSEO(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.SEO.List(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *handler) adminUpsertSEO(w http.ResponseWriter, r *http.Request) {
	var meta seo.Metadata
	if err := decodeJSON(w, r, &meta); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	saved, err := h.app.SEO.Upsert(r.Context(), meta)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *handler) adminDeleteSEO(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if strings.TrimSpace(path) == "" {
		writeError(w, r, h.log, apperrors.Validation("path", "path is required"))
		return
	}
	if err := h.app.SEO.Delete(r.Context(), path); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) adminOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	page, err := h.app.Backoffice.Orders(r.Context(), payment.OrderFilter{
		Status: payment.OrderStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) adminUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	page, err := h.app.Backoffice.Users(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) adminAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.audit.listLimit(limit)})
}
