package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contractdesk/cloudsign"
	"contractdesk/project"
	"contractdesk/settings"
)

type stubProjectService struct {
	proj       project.Project
	projErr    error
	listResult project.ListResult
	listErr    error
	created    *project.CreateParams
	deleted    []string

	sendResult project.SendResult
	sendErr    error
	sentDocs   []string
	sendDocErr error

	pdf     []byte
	pdfName string
	pdfErr  error

	doc    cloudsign.Document
	docErr error
}

func (s *stubProjectService) Create(_ context.Context, params project.CreateParams) (project.Project, error) {
	s.created = &params
	return s.proj, s.projErr
}

func (s *stubProjectService) Get(_ context.Context, _ string) (project.Project, error) {
	return s.proj, s.projErr
}

func (s *stubProjectService) List(_ context.Context, _ project.Filters) (project.ListResult, error) {
	return s.listResult, s.listErr
}

func (s *stubProjectService) Update(_ context.Context, _ string, _ project.UpdateParams) (project.Project, error) {
	return s.proj, s.projErr
}

func (s *stubProjectService) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return s.projErr
}

func (s *stubProjectService) SendToSign(_ context.Context, _ string) (project.SendResult, error) {
	return s.sendResult, s.sendErr
}

func (s *stubProjectService) SendDocument(_ context.Context, id string) error {
	if s.sendDocErr != nil {
		return s.sendDocErr
	}
	s.sentDocs = append(s.sentDocs, id)
	return nil
}

func (s *stubProjectService) Download(_ context.Context, _ string) ([]byte, string, error) {
	return s.pdf, s.pdfName, s.pdfErr
}

func (s *stubProjectService) RemoteStatus(_ context.Context, _ string) (cloudsign.Document, error) {
	return s.doc, s.docErr
}

type stubSettingsStore struct {
	cfg       settings.CloudSignConfig
	getErr    error
	upsertErr error
	deleted   bool
	deleteErr error
}

func (s *stubSettingsStore) Get(_ context.Context) (settings.CloudSignConfig, error) {
	return s.cfg, s.getErr
}

func (s *stubSettingsStore) Upsert(_ context.Context, clientID, baseURL string) (settings.CloudSignConfig, error) {
	if s.upsertErr != nil {
		return settings.CloudSignConfig{}, s.upsertErr
	}
	s.cfg = settings.CloudSignConfig{ClientID: clientID, BaseURL: baseURL, UpdatedAt: time.Now()}
	return s.cfg, nil
}

func (s *stubSettingsStore) Delete(_ context.Context) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = true
	return nil
}

type stubCredentialSink struct {
	updates []cloudsign.Credentials
}

func (s *stubCredentialSink) UpdateCredentials(creds cloudsign.Credentials) {
	s.updates = append(s.updates, creds)
}

func newTestServer(projects projectService, store settingsStore, sink credentialSink) *Server {
	return &Server{
		projects: projects,
		settings: store,
		client:   sink,
		logger:   log.New(io.Discard, "", 0),
	}
}

func TestHandleCreateProject_Success(t *testing.T) {
	svc := &stubProjectService{
		proj: project.Project{ID: "proj-1", Title: "Contract A", CreatedAt: time.Now()},
	}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	body := strings.NewReader(`{
		"title": "Contract A",
		"participants": [{"name": "Sato", "email": "sato@example.com", "embeddedSigner": true}],
		"files": [{"fileName": "contract.pdf", "content": "JVBERi0xLjc="}]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/projects", body)
	rec := httptest.NewRecorder()

	server.handleProjects(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.created == nil {
		t.Fatal("expected create to be called")
	}
	if len(svc.created.Files) != 1 || string(svc.created.Files[0].Content) != "%PDF-1.7" {
		t.Fatalf("expected decoded file content, got %+v", svc.created.Files)
	}

	var resp projectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "proj-1" {
		t.Fatalf("unexpected response payload: %+v", resp)
	}
}

func TestHandleCreateProject_ValidationError(t *testing.T) {
	svc := &stubProjectService{projErr: project.ErrInvalid}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{"title":""}`))
	rec := httptest.NewRecorder()

	server.handleProjects(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload["kind"] != "invalid" {
		t.Fatalf("expected kind invalid, got %q", payload["kind"])
	}
}

func TestHandleProjectDetail_NotFound(t *testing.T) {
	svc := &stubProjectService{projErr: project.ErrNotFound}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodGet, "/api/projects/missing", nil)
	rec := httptest.NewRecorder()

	server.handleProjectDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleProjectDetail_WrongMethod(t *testing.T) {
	server := newTestServer(&stubProjectService{}, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodPatch, "/api/projects/proj-1", nil)
	rec := httptest.NewRecorder()

	server.handleProjectDetail(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleSendToSign_Success(t *testing.T) {
	svc := &stubProjectService{
		sendResult: project.SendResult{
			Project:    project.Project{ID: "proj-1", Title: "Contract A"},
			DocumentID: "doc-1",
			SigningURLs: []cloudsign.SignerURL{
				{Name: "Sato", URL: "https://sign.example.com/s/abc"},
			},
		},
	}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodPost, "/api/projects/proj-1/send_to_sign", nil)
	rec := httptest.NewRecorder()

	server.handleProjectDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		DocumentID  string               `json:"documentId"`
		SigningURLs []signingURLResponse `json:"signingUrls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.DocumentID != "doc-1" || len(payload.SigningURLs) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleSendToSign_AlreadySent(t *testing.T) {
	svc := &stubProjectService{sendErr: project.ErrAlreadySent}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodPost, "/api/projects/proj-1/send_to_sign", nil)
	rec := httptest.NewRecorder()

	server.handleProjectDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleSendToSign_Unconfigured(t *testing.T) {
	svc := &stubProjectService{sendErr: cloudsign.ErrNotConfigured}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodPost, "/api/projects/proj-1/send_to_sign", nil)
	rec := httptest.NewRecorder()

	server.handleProjectDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload["kind"] != "not_configured" {
		t.Fatalf("expected kind not_configured, got %q", payload["kind"])
	}
}

func TestHandleSendToSign_UpstreamFailure(t *testing.T) {
	svc := &stubProjectService{sendErr: &cloudsign.APIError{Status: 500, Body: "upstream"}}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodPost, "/api/projects/proj-1/send_to_sign", nil)
	rec := httptest.NewRecorder()

	server.handleProjectDetail(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestHandleSendDocument_NotDraft(t *testing.T) {
	svc := &stubProjectService{sendDocErr: cloudsign.ErrNotDraft}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodPost, "/api/projects/proj-1/send", nil)
	rec := httptest.NewRecorder()

	server.handleProjectDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleDownload_Success(t *testing.T) {
	svc := &stubProjectService{
		pdf:     []byte("%PDF-1.7 signed"),
		pdfName: "cloudsign_document_doc-1.pdf",
	}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodGet, "/api/projects/proj-1/download", nil)
	rec := httptest.NewRecorder()

	server.handleProjectDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "cloudsign_document_doc-1.pdf") {
		t.Fatalf("unexpected content disposition %q", got)
	}
	if rec.Body.String() != "%PDF-1.7 signed" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHandleRemoteStatus_Success(t *testing.T) {
	svc := &stubProjectService{
		doc: cloudsign.Document{ID: "doc-1", Title: "Contract A", Status: cloudsign.StatusAwaitingCounterparty},
	}
	server := newTestServer(svc, &stubSettingsStore{}, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodGet, "/api/projects/proj-1/status", nil)
	rec := httptest.NewRecorder()

	server.handleProjectDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != "awaiting_counterparty" {
		t.Fatalf("unexpected status %v", payload["status"])
	}
}

func TestHandleSettings_PutUpdatesClient(t *testing.T) {
	store := &stubSettingsStore{}
	sink := &stubCredentialSink{}
	server := newTestServer(&stubProjectService{}, store, sink)

	body := strings.NewReader(`{"clientId":"client-1","baseUrl":"https://api.cloudsign.jp"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/settings/cloudsign", body)
	rec := httptest.NewRecorder()

	server.handleCloudSignSettings(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sink.updates) != 1 {
		t.Fatalf("expected 1 credential update, got %d", len(sink.updates))
	}
	if sink.updates[0].ClientID != "client-1" {
		t.Fatalf("unexpected credentials %+v", sink.updates[0])
	}
}

func TestHandleSettings_DeleteClearsClient(t *testing.T) {
	store := &stubSettingsStore{}
	sink := &stubCredentialSink{}
	server := newTestServer(&stubProjectService{}, store, sink)

	req := httptest.NewRequest(http.MethodDelete, "/api/settings/cloudsign", nil)
	rec := httptest.NewRecorder()

	server.handleCloudSignSettings(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !store.deleted {
		t.Fatal("expected settings delete")
	}
	if len(sink.updates) != 1 || sink.updates[0].ClientID != "" {
		t.Fatalf("expected credentials cleared, got %+v", sink.updates)
	}
}

func TestHandleSettings_GetNotFound(t *testing.T) {
	store := &stubSettingsStore{getErr: settings.ErrNotFound}
	server := newTestServer(&stubProjectService{}, store, &stubCredentialSink{})

	req := httptest.NewRequest(http.MethodGet, "/api/settings/cloudsign", nil)
	rec := httptest.NewRecorder()

	server.handleCloudSignSettings(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
