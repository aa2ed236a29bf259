package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/smartclips-editor/internal/domain"
	"github.com/smartclips-editor/internal/media"
	"github.com/smartclips-editor/internal/playback"
	"github.com/smartclips-editor/internal/recipe"
	"github.com/smartclips-editor/internal/service/editor"
	"github.com/smartclips-editor/internal/service/upload"
	"github.com/smartclips-editor/pkg/logger"
)

type handlers struct {
	editor    *editor.Service
	publisher *upload.Service
	maxUpload int64
	log       *logger.Logger
}

type urlRequest struct {
	URL    string `json:"url"`
	Layout string `json:"layout,omitempty"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type trimRequest struct {
	StartTime *float64 `json:"startTime"`
	EndTime   *float64 `json:"endTime"`
}

type speedRequest struct {
	SpeedFactor *float64 `json:"speedFactor"`
}

type effectRequest struct {
	EffectType string `json:"effectType"`
}

type seekRequest struct {
	Position *float64 `json:"position"`
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrCommitInFlight), errors.Is(err, domain.ErrReleased):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRecipe), errors.Is(err, domain.ErrMediaUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrRemoteProcessing):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrHistoryDisabled), errors.Is(err, domain.ErrPublishNotEnabled):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorw(msg, "error", err, "path", r.URL.Path)
		if status == http.StatusInternalServerError {
			respondError(w, status, msg)
			return
		}
	}
	respondError(w, status, err.Error())
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	sess, err := h.editor.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err, "failed to get session")
		return nil, false
	}
	return sess, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// importMedia reads media from a multipart "file" part or a JSON url body
func (h *handlers) importMedia(w http.ResponseWriter, r *http.Request) (*media.Reference, string, error) {
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("%w: file is required", domain.ErrInvalidInput)
		}
		defer file.Close()

		ref, err := h.editor.ImportUpload(header.Filename, file)
		return ref, r.FormValue("layout"), err
	}

	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		return nil, "", fmt.Errorf("%w: a multipart file or a JSON url is required", domain.ErrInvalidInput)
	}
	ref, err := h.editor.ImportURL(req.URL)
	return ref, req.Layout, err
}

// createSession opens a session on an uploaded file or a remote URL
func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	ref, _, err := h.importMedia(w, r)
	if err != nil {
		h.fail(w, r, err, "failed to import media")
		return
	}

	sess, err := h.editor.Open(ref, getUserID(r))
	if err != nil {
		h.fail(w, r, err, "failed to open session")
		return
	}

	respondJSON(w, http.StatusCreated, sess.View())
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		respondJSON(w, http.StatusOK, sess.View())
	}
}

func (h *handlers) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.editor.Close(chi.URLParam(r, "sessionID")); err != nil {
		h.fail(w, r, err, "failed to close session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apply runs an edit and answers with the updated session view
func (h *handlers) apply(w http.ResponseWriter, r *http.Request, sess *editor.Session, err error) {
	if err != nil {
		h.fail(w, r, err, "failed to update session")
		return
	}
	respondJSON(w, http.StatusOK, sess.View())
}

func (h *handlers) selectMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if !decode(w, r, &req) {
		return
	}
	mode, err := recipe.ParseMode(req.Mode)
	if err == nil {
		err = sess.SelectMode(mode)
	}
	h.apply(w, r, sess, err)
}

func (h *handlers) setTrim(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req trimRequest
	if !decode(w, r, &req) {
		return
	}
	if req.StartTime == nil || req.EndTime == nil {
		respondError(w, http.StatusBadRequest, "startTime and endTime are required")
		return
	}
	h.apply(w, r, sess, sess.SetTrim(*req.StartTime, *req.EndTime))
}

func (h *handlers) setSpeed(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req speedRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SpeedFactor == nil {
		respondError(w, http.StatusBadRequest, "speedFactor is required")
		return
	}
	h.apply(w, r, sess, sess.SetSpeed(*req.SpeedFactor))
}

func (h *handlers) setEffect(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req effectRequest
	if !decode(w, r, &req) {
		return
	}
	h.apply(w, r, sess, sess.SetEffect(recipe.Effect(req.EffectType)))
}

// setSplitScreen takes the second video as a multipart file or a JSON url.
// A body with only a layout changes the layout and keeps the partner.
func (h *handlers) setSplitScreen(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if !isMultipart(r) {
		var req urlRequest
		if !decode(w, r, &req) {
			return
		}
		layout := recipe.Layout(req.Layout)
		if layout == "" {
			layout = recipe.LayoutHorizontal
		}
		if req.URL == "" {
			h.apply(w, r, sess, sess.SetLayout(layout))
			return
		}
		partner, err := h.editor.ImportURL(req.URL)
		if err != nil {
			h.fail(w, r, err, "failed to import partner")
			return
		}
		h.apply(w, r, sess, sess.SetSplitScreen(partner, layout))
		return
	}

	partner, layout, err := h.importMedia(w, r)
	if err != nil {
		h.fail(w, r, err, "failed to import partner")
		return
	}
	if layout == "" {
		layout = string(recipe.LayoutHorizontal)
	}
	h.apply(w, r, sess, sess.SetSplitScreen(partner, recipe.Layout(layout)))
}

// commit submits the active recipe with the caller's bearer token
func (h *handlers) commit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	result, err := sess.Commit(r.Context(), bearerToken(r))
	if err != nil {
		h.fail(w, r, err, "commit failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":  result,
		"session": sess.View(),
	})
}

func (h *handlers) deliverEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var ev playback.Event
	if !decode(w, r, &ev) {
		return
	}
	h.apply(w, r, sess, sess.Deliver(ev))
}

func (h *handlers) togglePlayback(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		h.apply(w, r, sess, sess.TogglePlayPause())
	}
}

func (h *handlers) seek(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req seekRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Position == nil {
		respondError(w, http.StatusBadRequest, "position is required")
		return
	}
	h.apply(w, r, sess, sess.Seek(*req.Position))
}

func (h *handlers) toggleMute(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.session(w, r); ok {
		h.apply(w, r, sess, sess.ToggleMute())
	}
}

// publish stores the current media durably and returns its URL
func (h *handlers) publish(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	ref, unpin, err := sess.Hold()
	if err != nil {
		h.fail(w, r, err, "publish failed")
		return
	}
	defer unpin()

	resp, err := h.publisher.Publish(r.Context(), sess.ID(), ref)
	if err != nil {
		h.fail(w, r, err, "publish failed")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	records, err := h.editor.History(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to list history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": records,
		"count": len(records),
	})
}

// bearerToken returns the credential forwarded to the processing endpoint
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// getUserID extracts user ID from request context
// In production, this would come from auth middleware
func getUserID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}
