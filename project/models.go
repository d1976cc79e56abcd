package project

import "time"

// Project is a deal that may have a contract sent through CloudSign.
type Project struct {
	ID                  string
	Title               string
	Description         string
	Amount              *int64
	DueDate             *time.Time
	CloudSignDocumentID *string
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Participants []Participant
	Files        []ContractFile
}

// Participant is a signer attached to a project. Exactly one of Email,
// Tel, or RecipientID selects how CloudSign authenticates them.
type Participant struct {
	ID                     string
	ProjectID              string
	Name                   string
	Email                  string
	Tel                    string
	RecipientID            string
	Callback               bool
	EmbeddedSigner         bool
	SignOrder              int
	CloudSignParticipantID *string
	CreatedAt              time.Time
}

// ContractFile is a PDF stored for upload. Content is only populated by
// FileContents, not by project reads.
type ContractFile struct {
	ID        string
	ProjectID string
	FileName  string
	Content   []byte
	CreatedAt time.Time
}

// Sent reports whether the project already has a remote document.
func (p Project) Sent() bool {
	return p.CloudSignDocumentID != nil && *p.CloudSignDocumentID != ""
}
