package cloudsign

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DocumentAPI is the slice of the client the embedded signing flow needs.
type DocumentAPI interface {
	CreateDocument(ctx context.Context, title string) (string, error)
	AddFile(ctx context.Context, documentID, name string, content []byte) (string, error)
	AddParticipant(ctx context.Context, documentID string, params ParticipantParams) (string, error)
	GetDocument(ctx context.Context, documentID string) (Document, error)
	SendDocument(ctx context.Context, documentID string) error
	SigningURL(ctx context.Context, documentID, participantID, recipientID string) (SigningURL, error)
}

// FileInput is a local contract file to attach to the new document.
type FileInput struct {
	Name    string
	Content []byte
}

// SignerInput is a local participant record. RemoteID carries a participant id
// assigned on a previous run; such participants are skipped so the flow can be
// re-run after a partial failure without duplicating them.
type SignerInput struct {
	Name           string
	Email          string
	Tel            string
	Callback       bool
	RecipientID    string
	EmbeddedSigner bool
	RemoteID       string
}

// EmbeddedSigningRequest describes one full document-creation workflow.
type EmbeddedSigningRequest struct {
	Title   string
	Files   []FileInput
	Signers []SignerInput
}

// SignerResult reports the remote participant id for one signer, in the same
// order as the request.
type SignerResult struct {
	Name     string
	RemoteID string
}

// SignerURL is an issued embedded-signing URL.
type SignerURL struct {
	Name      string
	URL       string
	ExpiresAt time.Time
}

// EmbeddedSigningResult is the outcome of a completed (or partially completed)
// flow. DocumentID is populated as soon as the document exists remotely, so on
// a mid-flow failure the caller can still inspect and clean up the partial
// document.
type EmbeddedSigningResult struct {
	DocumentID  string
	Signers     []SignerResult
	SigningURLs []SignerURL
}

// EmbeddedSigningFlow composes client calls into the multi-step workflow:
// create document, attach files, add participants, issue signing URLs for
// embedded signers. The flow is terminal on first failure; completed steps are
// not rolled back.
type EmbeddedSigningFlow struct {
	client DocumentAPI
	logger *log.Logger
}

func NewEmbeddedSigningFlow(client DocumentAPI, logger *log.Logger) *EmbeddedSigningFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &EmbeddedSigningFlow{client: client, logger: logger}
}

// Run executes the workflow. The returned result is meaningful even when err
// is non-nil: DocumentID and any already-assigned signer ids reflect the
// remote state the completed steps produced.
func (f *EmbeddedSigningFlow) Run(ctx context.Context, req EmbeddedSigningRequest) (EmbeddedSigningResult, error) {
	var result EmbeddedSigningResult

	if req.Title == "" {
		return result, fmt.Errorf("cloudsign: signing flow title required")
	}
	if len(req.Files) == 0 {
		return result, fmt.Errorf("cloudsign: signing flow requires at least one file")
	}
	if len(req.Signers) == 0 {
		return result, fmt.Errorf("cloudsign: signing flow requires at least one signer")
	}

	documentID, err := f.client.CreateDocument(ctx, req.Title)
	if err != nil {
		return result, fmt.Errorf("cloudsign: create document: %w", err)
	}
	result.DocumentID = documentID

	for _, file := range req.Files {
		if _, err := f.client.AddFile(ctx, documentID, file.Name, file.Content); err != nil {
			f.logger.Printf("cloudsign: document %s left partially prepared after file upload failure", documentID)
			return result, fmt.Errorf("cloudsign: add file %q: %w", file.Name, err)
		}
	}

	for _, signer := range req.Signers {
		remoteID := signer.RemoteID
		if remoteID == "" {
			remoteID, err = f.client.AddParticipant(ctx, documentID, ParticipantParams{
				Name:        signer.Name,
				Email:       signer.Email,
				Tel:         signer.Tel,
				Callback:    signer.Callback,
				RecipientID: signer.RecipientID,
			})
			if err != nil {
				return result, fmt.Errorf("cloudsign: add participant %q: %w", signer.Name, err)
			}
		}
		result.Signers = append(result.Signers, SignerResult{Name: signer.Name, RemoteID: remoteID})
	}

	for i, signer := range req.Signers {
		if !signer.EmbeddedSigner {
			continue
		}
		// Callback (SMS) authentication excludes simple-auth recipient ids, so
		// the recipient id is dropped here as well as from the add payload.
		recipientID := signer.RecipientID
		if signer.Callback {
			recipientID = ""
		}
		signingURL, err := f.client.SigningURL(ctx, documentID, result.Signers[i].RemoteID, recipientID)
		if err != nil {
			return result, fmt.Errorf("cloudsign: signing url for %q: %w", signer.Name, err)
		}
		result.SigningURLs = append(result.SigningURLs, SignerURL{
			Name:      signer.Name,
			URL:       signingURL.URL,
			ExpiresAt: signingURL.ExpiresAt,
		})
	}

	return result, nil
}

// SendDocument sends the document after verifying it is still a draft. A
// non-draft document cannot be re-sent: reminders are unsupported for embedded
// and SMS-authenticated participants, so the guard fails before any send call
// reaches the remote service.
func (f *EmbeddedSigningFlow) SendDocument(ctx context.Context, documentID string) error {
	doc, err := f.client.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != StatusDraft {
		return fmt.Errorf("%w (status %s)", ErrNotDraft, doc.Status)
	}
	return f.client.SendDocument(ctx, documentID)
}
