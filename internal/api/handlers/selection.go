// selection.go — обработчики /api/v1/selection: выбор файлов сессии.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/bigkaa/pocketshare/internal/api/errors"
	"github.com/bigkaa/pocketshare/internal/api/generated"
	"github.com/bigkaa/pocketshare/internal/domain/selection"
)

// GetSelection — GET /api/v1/selection.
func (h *APIHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	writeSelection(w, h.selections.For(sess.ID))
}

// ClearSelection — DELETE /api/v1/selection.
func (h *APIHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	set := h.selections.For(sess.ID)
	set.Clear()
	writeSelection(w, set)
}

// ToggleSelection — POST /api/v1/selection/toggle.
func (h *APIHandler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req generated.ToggleSelectionJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Id == "" {
		apierrors.ValidationError(w, "Идентификатор файла (id) обязателен")
		return
	}

	set := h.selections.For(sess.ID)
	set.Toggle(req.Id)
	writeSelection(w, set)
}

// ToggleAllSelection — POST /api/v1/selection/toggle-all.
// Если выбрано столько же файлов, сколько передано, выбор сбрасывается,
// иначе выбор становится ровно переданным набором.
func (h *APIHandler) ToggleAllSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req generated.ToggleAllSelectionJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	set := h.selections.For(sess.ID)
	set.ToggleAll(req.Ids)
	writeSelection(w, set)
}

func writeSelection(w http.ResponseWriter, set *selection.Set) {
	ids := set.IDs()
	apierrors.WriteJSON(w, http.StatusOK, generated.Selection{
		Ids:   ids,
		Count: len(ids),
	})
}
