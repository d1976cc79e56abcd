package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"contractdesk/cloudsign"
	"contractdesk/project"
	"contractdesk/settings"
)

type projectService interface {
	Create(ctx context.Context, params project.CreateParams) (project.Project, error)
	Get(ctx context.Context, id string) (project.Project, error)
	List(ctx context.Context, filters project.Filters) (project.ListResult, error)
	Update(ctx context.Context, id string, params project.UpdateParams) (project.Project, error)
	Delete(ctx context.Context, id string) error
	SendToSign(ctx context.Context, projectID string) (project.SendResult, error)
	SendDocument(ctx context.Context, projectID string) error
	Download(ctx context.Context, projectID string) ([]byte, string, error)
	RemoteStatus(ctx context.Context, projectID string) (cloudsign.Document, error)
}

type settingsStore interface {
	Get(ctx context.Context) (settings.CloudSignConfig, error)
	Upsert(ctx context.Context, clientID, baseURL string) (settings.CloudSignConfig, error)
	Delete(ctx context.Context) error
}

type credentialSink interface {
	UpdateCredentials(creds cloudsign.Credentials)
}

type Server struct {
	projects projectService
	settings settingsStore
	client   credentialSink
	logger   *log.Logger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/projects/", s.handleProjectDetail)
	mux.HandleFunc("/api/settings/cloudsign", s.handleCloudSignSettings)
	return mux
}

type participantRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Tel            string `json:"tel"`
	RecipientID    string `json:"recipientId"`
	Callback       bool   `json:"callback"`
	EmbeddedSigner bool   `json:"embeddedSigner"`
}

type fileRequest struct {
	FileName string `json:"fileName"`
	Content  []byte `json:"content"`
}

type projectRequest struct {
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Amount       *int64               `json:"amount"`
	DueDate      *string              `json:"dueDate"`
	Participants []participantRequest `json:"participants"`
	Files        []fileRequest        `json:"files"`
}

type participantResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email,omitempty"`
	Tel            string  `json:"tel,omitempty"`
	RecipientID    string  `json:"recipientId,omitempty"`
	Callback       bool    `json:"callback"`
	EmbeddedSigner bool    `json:"embeddedSigner"`
	SignOrder      int     `json:"signOrder"`
	RemoteID       *string `json:"cloudsignParticipantId"`
}

type fileResponse struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
}

type projectResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Amount       *int64                `json:"amount"`
	DueDate      *string               `json:"dueDate"`
	DocumentID   *string               `json:"cloudsignDocumentId"`
	Sent         bool                  `json:"sent"`
	CreatedAt    string                `json:"createdAt"`
	UpdatedAt    string                `json:"updatedAt"`
	Participants []participantResponse `json:"participants,omitempty"`
	Files        []fileResponse        `json:"files,omitempty"`
}

func toProjectResponse(p project.Project) projectResponse {
	resp := projectResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Amount:      p.Amount,
		DocumentID:  p.CloudSignDocumentID,
		Sent:        p.Sent(),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
	if p.DueDate != nil {
		due := p.DueDate.Format("2006-01-02")
		resp.DueDate = &due
	}
	for _, pp := range p.Participants {
		resp.Participants = append(resp.Participants, participantResponse{
			ID:             pp.ID,
			Name:           pp.Name,
			Email:          pp.Email,
			Tel:            pp.Tel,
			RecipientID:    pp.RecipientID,
			Callback:       pp.Callback,
			EmbeddedSigner: pp.EmbeddedSigner,
			SignOrder:      pp.SignOrder,
			RemoteID:       pp.CloudSignParticipantID,
		})
	}
	for _, f := range p.Files {
		resp.Files = append(resp.Files, fileResponse{ID: f.ID, FileName: f.FileName})
	}
	return resp
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListProjects(w, r)
	case http.MethodPost:
		s.handleCreateProject(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := project.Filters{
		Search:     q.Get("search"),
		SentOnly:   q.Get("sent") == "true",
		DraftsOnly: q.Get("sent") == "false",
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = page
	}
	if size, err := strconv.Atoi(q.Get("pageSize")); err == nil {
		filters.PageSize = size
	}
	if raw := q.Get("dueBefore"); raw != "" {
		due, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: invalid dueBefore date", project.ErrInvalid))
			return
		}
		filters.DueBefore = &due
	}
	if raw := q.Get("dueAfter"); raw != "" {
		due, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: invalid dueAfter date", project.ErrInvalid))
			return
		}
		filters.DueAfter = &due
	}

	result, err := s.projects.List(r.Context(), filters)
	if err != nil {
		s.writeError(w, err)
		return
	}

	items := []projectResponse{}
	for _, p := range result.Items {
		items = append(items, toProjectResponse(p))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": result.Total})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed request body", project.ErrInvalid))
		return
	}

	params, err := toCreateParams(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	proj, err := s.projects.Create(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toProjectResponse(proj))
}

func toCreateParams(req projectRequest) (project.CreateParams, error) {
	params := project.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			return project.CreateParams{}, fmt.Errorf("%w: invalid due date", project.ErrInvalid)
		}
		params.DueDate = &due
	}
	for _, p := range req.Participants {
		params.Participants = append(params.Participants, project.Participant{
			Name:           p.Name,
			Email:          p.Email,
			Tel:            p.Tel,
			RecipientID:    p.RecipientID,
			Callback:       p.Callback,
			EmbeddedSigner: p.EmbeddedSigner,
		})
	}
	for _, f := range req.Files {
		params.Files = append(params.Files, project.ContractFile{FileName: f.FileName, Content: f.Content})
	}
	return params, nil
}

func (s *Server) handleProjectDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "project id required", http.StatusBadRequest)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetProject(w, r, id)
		case http.MethodPut:
			s.handleUpdateProject(w, r, id)
		case http.MethodDelete:
			s.handleDeleteProject(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) != 2 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch parts[1] {
	case "send_to_sign":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleSendToSign(w, r, id)
	case "send":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleSendDocument(w, r, id)
	case "download":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleDownload(w, r, id)
	case "status":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleRemoteStatus(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request, id string) {
	proj, err := s.projects.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProjectResponse(proj))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request, id string) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed request body", project.ErrInvalid))
		return
	}

	params := project.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: invalid due date", project.ErrInvalid))
			return
		}
		params.DueDate = &due
	}

	proj, err := s.projects.Update(r.Context(), id, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProjectResponse(proj))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.projects.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signingURLResponse struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (s *Server) handleSendToSign(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.projects.SendToSign(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	urls := []signingURLResponse{}
	for _, u := range result.SigningURLs {
		item := signingURLResponse{Name: u.Name, URL: u.URL}
		if !u.ExpiresAt.IsZero() {
			item.ExpiresAt = u.ExpiresAt.Format(time.RFC3339)
		}
		urls = append(urls, item)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"project":     toProjectResponse(result.Project),
		"documentId":  result.DocumentID,
		"signingUrls": urls,
	})
}

func (s *Server) handleSendDocument(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.projects.SendDocument(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	data, name, err := s.projects.Download(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Write(data)
}

func (s *Server) handleRemoteStatus(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := s.projects.RemoteStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	participants := []map[string]string{}
	for _, p := range doc.Participants {
		participants = append(participants, map[string]string{"id": p.ID, "name": p.Name})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"documentId":   doc.ID,
		"title":        doc.Title,
		"status":       doc.Status.String(),
		"participants": participants,
	})
}

type settingsRequest struct {
	ClientID string `json:"clientId"`
	BaseURL  string `json:"baseUrl"`
}

type settingsResponse struct {
	ClientID  string `json:"clientId"`
	BaseURL   string `json:"baseUrl"`
	UpdatedAt string `json:"updatedAt"`
}

func (s *Server) handleCloudSignSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.settings.Get(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, settingsResponse{
			ClientID:  cfg.ClientID,
			BaseURL:   cfg.BaseURL,
			UpdatedAt: cfg.UpdatedAt.Format(time.RFC3339),
		})
	case http.MethodPut:
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, fmt.Errorf("%w: malformed request body", project.ErrInvalid))
			return
		}
		cfg, err := s.settings.Upsert(r.Context(), req.ClientID, req.BaseURL)
		if err != nil {
			s.writeError(w, err)
			return
		}
		// Saved credentials take effect immediately for in-flight clients.
		s.client.UpdateCredentials(cloudsign.Credentials{ClientID: cfg.ClientID, BaseURL: cfg.BaseURL})
		s.writeJSON(w, http.StatusOK, settingsResponse{
			ClientID:  cfg.ClientID,
			BaseURL:   cfg.BaseURL,
			UpdatedAt: cfg.UpdatedAt.Format(time.RFC3339),
		})
	case http.MethodDelete:
		if err := s.settings.Delete(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		s.client.UpdateCredentials(cloudsign.Credentials{})
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

// writeError maps domain errors onto HTTP statuses with a machine-readable
// kind so clients can distinguish a misconfiguration from an upstream outage.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		kind   = "internal"
	)

	var apiErr *cloudsign.APIError
	var authErr *cloudsign.AuthError
	var netErr *cloudsign.NetworkError
	var protoErr *cloudsign.ProtocolError

	switch {
	case errors.Is(err, project.ErrNotFound), errors.Is(err, settings.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, project.ErrInvalid), errors.Is(err, project.ErrNoFiles), errors.Is(err, project.ErrNoSigners):
		status, kind = http.StatusBadRequest, "invalid"
	case errors.Is(err, project.ErrAlreadySent), errors.Is(err, project.ErrDocumentExists),
		errors.Is(err, project.ErrNotSent), errors.Is(err, cloudsign.ErrNotDraft):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, cloudsign.ErrNotConfigured):
		status, kind = http.StatusConflict, "not_configured"
	case errors.As(err, &authErr):
		status, kind = http.StatusBadGateway, "auth"
	case errors.As(err, &netErr):
		status, kind = http.StatusBadGateway, "network"
	case errors.As(err, &apiErr):
		status, kind = http.StatusBadGateway, "api"
	case errors.As(err, &protoErr):
		status, kind = http.StatusBadGateway, "protocol"
	}

	if status == http.StatusInternalServerError {
		s.logger.Printf("internal error: %v", err)
	}
	s.writeJSON(w, status, map[string]string{"kind": kind, "message": err.Error()})
}
