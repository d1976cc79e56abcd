package cloudsign

import "time"

// Status is the document lifecycle state reported by CloudSign.
type Status int

const (
	StatusDraft Status = iota
	StatusAwaitingCounterparty
	StatusConcluded
	StatusCancelled
	StatusTemplate
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusAwaitingCounterparty:
		return "awaiting_counterparty"
	case StatusConcluded:
		return "concluded"
	case StatusCancelled:
		return "cancelled"
	case StatusTemplate:
		return "template"
	default:
		return "unknown"
	}
}

// Document is the remote document resource with its sub-resources.
type Document struct {
	ID           string
	Title        string
	Status       Status
	Participants []Participant
	Files        []File
}

// Participant is a signer or recipient attached to a remote document.
type Participant struct {
	ID    string
	Name  string
	Email string
	Tel   string
}

// File is a contract file attached to a remote document.
type File struct {
	ID   string
	Name string
}

// SigningURL is a time-limited URL at which an embedded signer completes
// signing.
type SigningURL struct {
	URL       string
	ExpiresAt time.Time
}

type participantResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Tel   string `json:"tel"`
}

type fileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type documentResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Status       int                   `json:"status"`
	Participants []participantResponse `json:"participants"`
	Files        []fileResponse        `json:"files"`
}

func (d documentResponse) toDocument() Document {
	doc := Document{
		ID:     d.ID,
		Title:  d.Title,
		Status: Status(d.Status),
	}
	for _, p := range d.Participants {
		doc.Participants = append(doc.Participants, Participant{ID: p.ID, Name: p.Name, Email: p.Email, Tel: p.Tel})
	}
	for _, f := range d.Files {
		doc.Files = append(doc.Files, File{ID: f.ID, Name: f.Name})
	}
	return doc
}
