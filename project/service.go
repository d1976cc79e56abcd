package project

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"contractdesk/cloudsign"
)

var (
	ErrInvalid     = errors.New("project: invalid input")
	ErrAlreadySent = errors.New("project: contract already sent")
	ErrNotSent     = errors.New("project: contract not sent yet")
	ErrNoFiles     = errors.New("project: at least one contract file required")
	ErrNoSigners   = errors.New("project: at least one participant required")
)

// SigningFlow prepares a remote document end to end and issues
// embedded signing URLs.
type SigningFlow interface {
	Run(ctx context.Context, req cloudsign.EmbeddedSigningRequest) (cloudsign.EmbeddedSigningResult, error)
	SendDocument(ctx context.Context, documentID string) error
}

// DocumentReader covers the read-side calls the service makes directly.
type DocumentReader interface {
	GetDocument(ctx context.Context, documentID string) (cloudsign.Document, error)
	DownloadDocument(ctx context.Context, documentID string) ([]byte, error)
}

type Service struct {
	repo        Repository
	flow        SigningFlow
	docs        DocumentReader
	idGenerator func() string
	logger      *log.Logger
}

func NewService(repo Repository, flow SigningFlow, docs DocumentReader, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:        repo,
		flow:        flow,
		docs:        docs,
		idGenerator: func() string { return uuid.NewString() },
		logger:      logger,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Project, error) {
	params.Title = strings.TrimSpace(params.Title)
	if params.Title == "" {
		return Project{}, fmt.Errorf("%w: title required", ErrInvalid)
	}
	if params.Amount != nil && *params.Amount < 0 {
		return Project{}, fmt.Errorf("%w: amount must not be negative", ErrInvalid)
	}
	for i := range params.Participants {
		p := &params.Participants[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return Project{}, fmt.Errorf("%w: participant name required", ErrInvalid)
		}
		if err := validateAuthMode(*p); err != nil {
			return Project{}, err
		}
		p.ID = s.idGenerator()
	}
	for i := range params.Files {
		f := &params.Files[i]
		if len(f.Content) == 0 {
			return Project{}, fmt.Errorf("%w: empty contract file %q", ErrInvalid, f.FileName)
		}
		f.ID = s.idGenerator()
	}

	return s.repo.Create(ctx, s.idGenerator(), params)
}

func validateAuthMode(p Participant) error {
	modes := 0
	if p.Email != "" {
		modes++
	}
	if p.Tel != "" {
		modes++
	}
	if p.RecipientID != "" {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("%w: participant %q needs exactly one of email, tel, or recipient id", ErrInvalid, p.Name)
	}
	if p.Callback && p.Tel == "" {
		return fmt.Errorf("%w: participant %q callback requires tel", ErrInvalid, p.Name)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (Project, error) {
	return s.repo.Get(ctx, id)
}

type ListResult struct {
	Items []Project
	Total int
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (Project, error) {
	params.Title = strings.TrimSpace(params.Title)
	if params.Title == "" {
		return Project{}, fmt.Errorf("%w: title required", ErrInvalid)
	}
	return s.repo.Update(ctx, id, params)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// SendResult is what SendToSign hands back for display: the new remote
// document and any embedded signing URLs.
type SendResult struct {
	Project     Project
	DocumentID  string
	SigningURLs []cloudsign.SignerURL
}

// SendToSign creates the remote document, uploads every stored file,
// registers participants, and issues signing URLs for embedded signers.
// The remote document id is persisted as soon as it exists, even when a
// later step fails, so the operation can be inspected and retried.
func (s *Service) SendToSign(ctx context.Context, projectID string) (SendResult, error) {
	proj, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return SendResult{}, err
	}
	if proj.Sent() {
		return SendResult{}, ErrAlreadySent
	}
	if len(proj.Participants) == 0 {
		return SendResult{}, ErrNoSigners
	}

	files, err := s.repo.FileContents(ctx, projectID)
	if err != nil {
		return SendResult{}, err
	}
	if len(files) == 0 {
		return SendResult{}, ErrNoFiles
	}

	req := cloudsign.EmbeddedSigningRequest{Title: proj.Title}
	for _, f := range files {
		req.Files = append(req.Files, cloudsign.FileInput{Name: f.FileName, Content: f.Content})
	}
	for _, p := range proj.Participants {
		signer := cloudsign.SignerInput{
			Name:           p.Name,
			Email:          p.Email,
			Tel:            p.Tel,
			Callback:       p.Callback,
			RecipientID:    p.RecipientID,
			EmbeddedSigner: p.EmbeddedSigner,
		}
		if p.CloudSignParticipantID != nil {
			signer.RemoteID = *p.CloudSignParticipantID
		}
		req.Signers = append(req.Signers, signer)
	}

	result, runErr := s.flow.Run(ctx, req)

	if result.DocumentID != "" {
		if err := s.repo.SetDocumentID(ctx, projectID, result.DocumentID); err != nil {
			if errors.Is(err, ErrDocumentExists) {
				s.logger.Printf("project %s: document %s created but another send won the race", projectID, result.DocumentID)
			} else {
				s.logger.Printf("project %s: persist document id %s: %v", projectID, result.DocumentID, err)
			}
		}
		for i, assigned := range result.Signers {
			if i >= len(proj.Participants) || assigned.RemoteID == "" {
				continue
			}
			if err := s.repo.SetParticipantRemoteID(ctx, proj.Participants[i].ID, assigned.RemoteID); err != nil {
				s.logger.Printf("project %s: persist participant id for %q: %v", projectID, assigned.Name, err)
			}
		}
	}

	if runErr != nil {
		s.appendEvent(ctx, projectID, "CONTRACT_SEND_FAILED", map[string]any{
			"document_id": result.DocumentID,
			"error":       runErr.Error(),
		})
		return SendResult{}, runErr
	}

	s.appendEvent(ctx, projectID, "CONTRACT_PREPARED", map[string]any{
		"document_id":  result.DocumentID,
		"signing_urls": len(result.SigningURLs),
	})

	proj, err = s.repo.Get(ctx, projectID)
	if err != nil {
		return SendResult{}, err
	}

	return SendResult{
		Project:     proj,
		DocumentID:  result.DocumentID,
		SigningURLs: result.SigningURLs,
	}, nil
}

// SendDocument dispatches an already-prepared draft to its signers.
func (s *Service) SendDocument(ctx context.Context, projectID string) error {
	proj, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if !proj.Sent() {
		return ErrNotSent
	}

	if err := s.flow.SendDocument(ctx, *proj.CloudSignDocumentID); err != nil {
		return err
	}

	s.appendEvent(ctx, projectID, "CONTRACT_SENT", map[string]any{
		"document_id": *proj.CloudSignDocumentID,
	})
	return nil
}

// Download fetches the concluded contract PDF. The returned name follows
// the fixed cloudsign_document_{id}.pdf pattern.
func (s *Service) Download(ctx context.Context, projectID string) ([]byte, string, error) {
	proj, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	if !proj.Sent() {
		return nil, "", ErrNotSent
	}

	data, err := s.docs.DownloadDocument(ctx, *proj.CloudSignDocumentID)
	if err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("cloudsign_document_%s.pdf", *proj.CloudSignDocumentID)
	return data, name, nil
}

// RemoteStatus reads the live document state from CloudSign.
func (s *Service) RemoteStatus(ctx context.Context, projectID string) (cloudsign.Document, error) {
	proj, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return cloudsign.Document{}, err
	}
	if !proj.Sent() {
		return cloudsign.Document{}, ErrNotSent
	}
	return s.docs.GetDocument(ctx, *proj.CloudSignDocumentID)
}

func (s *Service) appendEvent(ctx context.Context, projectID, eventType string, payload map[string]any) {
	if err := s.repo.AppendEvent(ctx, projectID, eventType, payload); err != nil {
		s.logger.Printf("project %s: append %s event: %v", projectID, eventType, err)
	}
}
