package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/victis/victis-vision/internal/detector"
	"github.com/victis/victis-vision/internal/store"
)

// Activator switches the live pipeline to a stored profile.
type Activator interface {
	ActivateProfile(id string) error
	ActiveProfile() string
}

// ProfileHandler handles HTTP requests for tuning profile resources.
type ProfileHandler struct {
	store     *store.Store
	activator Activator
	log       logrus.FieldLogger
}

// NewProfileHandler creates a new ProfileHandler. activator may be nil, in
// which case the activate endpoint is unavailable.
func NewProfileHandler(s *store.Store, activator Activator, log logrus.FieldLogger) *ProfileHandler {
	return &ProfileHandler{store: s, activator: activator, log: log}
}

// ServeHTTP routes:
//
//	GET    /api/profiles
//	POST   /api/profiles
//	GET    /api/profiles/{id}
//	PUT    /api/profiles/{id}
//	DELETE /api/profiles/{id}
//	POST   /api/profiles/{id}/activate
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/profiles")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if id, ok := strings.CutSuffix(path, "/activate"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.activate(w, r, id)
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// profileRequest is the body of create and update. A nil config means the
// detector defaults; a nil draw means the default overlay.
type profileRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Config      *detector.Config      `json:"config"`
	Draw        *detector.DrawOptions `json:"draw"`
	// Color derives the HSV window from a sample color such as "#3cff8c".
	Color          string `json:"color"`
	ColorTolerance int    `json:"color_tolerance"`
}

type profileResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Config      detector.Config      `json:"config"`
	Draw        detector.DrawOptions `json:"draw"`
	Active      bool                 `json:"active"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at"`
}

type listProfilesResponse struct {
	Profiles []profileResponse `json:"profiles"`
}

func (h *ProfileHandler) toResponse(p *store.Profile) profileResponse {
	active := false
	if h.activator != nil {
		active = h.activator.ActiveProfile() == p.ID
	}
	return profileResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Config:      p.Config,
		Draw:        p.Draw,
		Active:      active,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// applyRequest copies the request onto p. A nil config or draw means the
// defaults.
func applyRequest(p *store.Profile, req profileRequest) error {
	p.Name = strings.TrimSpace(req.Name)
	p.Description = req.Description

	p.Config = detector.DefaultConfig()
	if req.Config != nil {
		p.Config = *req.Config
	}
	p.Draw = detector.DefaultDrawOptions()
	if req.Draw != nil {
		p.Draw = *req.Draw
	}

	if req.Color != "" {
		tol := req.ColorTolerance
		if tol <= 0 {
			tol = 20
		}
		color, err := detector.ColorConfigFromHex(req.Color, tol, p.Config.Color)
		if err != nil {
			return err
		}
		p.Config.Color = color
	}
	return nil
}

// list handles GET /api/profiles.
func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.Profiles().List()
	if err != nil {
		h.log.WithError(err).Error("listing profiles")
		WriteError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}

	response := listProfilesResponse{Profiles: make([]profileResponse, 0, len(profiles))}
	for _, p := range profiles {
		response.Profiles = append(response.Profiles, h.toResponse(p))
	}
	WriteJSON(w, http.StatusOK, response)
}

// get handles GET /api/profiles/{id}.
func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		h.writeStoreError(w, err, "Failed to get profile")
		return
	}
	WriteJSON(w, http.StatusOK, h.toResponse(p))
}

// create handles POST /api/profiles.
func (h *ProfileHandler) create(w http.ResponseWriter, r *http.Request) {
	cfg, draw := detector.DefaultConfig(), detector.DefaultDrawOptions()
	req := profileRequest{Config: &cfg, Draw: &draw}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p := &store.Profile{ID: uuid.New().String()}
	if err := applyRequest(p, req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Profiles().Create(p); err != nil {
		h.writeStoreError(w, err, "Failed to create profile")
		return
	}

	h.log.WithFields(logrus.Fields{"id": p.ID, "name": p.Name}).Info("profile created")
	WriteJSON(w, http.StatusCreated, h.toResponse(p))
}

// update handles PUT /api/profiles/{id}. Omitted config fields keep their
// stored values. Updating the active profile re-applies it to the pipeline.
func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		h.writeStoreError(w, err, "Failed to get profile")
		return
	}

	cfg, draw := p.Config, p.Draw
	req := profileRequest{Name: p.Name, Description: p.Description, Config: &cfg, Draw: &draw}
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := applyRequest(p, req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Profiles().Update(p); err != nil {
		h.writeStoreError(w, err, "Failed to update profile")
		return
	}

	if h.activator != nil && h.activator.ActiveProfile() == id {
		if err := h.activator.ActivateProfile(id); err != nil {
			h.log.WithError(err).Error("re-applying active profile")
		}
	}

	WriteJSON(w, http.StatusOK, h.toResponse(p))
}

// delete handles DELETE /api/profiles/{id}. The active profile cannot be
// deleted.
func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if h.activator != nil && h.activator.ActiveProfile() == id {
		WriteError(w, http.StatusConflict, "Cannot delete the active profile")
		return
	}

	if err := h.store.Profiles().Delete(id); err != nil {
		h.writeStoreError(w, err, "Failed to delete profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// activate handles POST /api/profiles/{id}/activate.
func (h *ProfileHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	if h.activator == nil {
		WriteError(w, http.StatusServiceUnavailable, "Pipeline not running")
		return
	}

	if err := h.activator.ActivateProfile(id); err != nil {
		h.writeStoreError(w, err, "Failed to activate profile")
		return
	}

	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		h.writeStoreError(w, err, "Failed to get profile")
		return
	}
	WriteJSON(w, http.StatusOK, h.toResponse(p))
}

func (h *ProfileHandler) writeStoreError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Profile not found")
	case errors.Is(err, store.ErrConflict):
		WriteError(w, http.StatusConflict, "Profile name already exists")
	case errors.Is(err, detector.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.WithError(err).Error(msg)
		WriteError(w, http.StatusInternalServerError, msg)
	}
}
