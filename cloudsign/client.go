package cloudsign

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CreateDocument creates a remote document in draft state and returns its id.
// It never auto-sends; sending is a separate, guarded step.
func (c *Client) CreateDocument(ctx context.Context, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("cloudsign: document title required")
	}

	form := url.Values{}
	form.Set("title", title)
	form.Set("send_to_parties", "false")

	body, err := c.do(ctx, call{method: http.MethodPost, path: "/documents", form: form})
	if err != nil {
		return "", err
	}

	var resp documentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ProtocolError{Msg: "malformed create document response"}
	}
	if resp.ID == "" {
		return "", &ProtocolError{Msg: "document id missing from create response"}
	}
	return resp.ID, nil
}

// AddFile uploads a contract file to the document and returns the assigned
// file id. The name is sanitized before upload.
func (c *Client) AddFile(ctx context.Context, documentID, name string, content []byte) (string, error) {
	if documentID == "" {
		return "", fmt.Errorf("cloudsign: document id required")
	}
	if len(content) == 0 {
		return "", fmt.Errorf("cloudsign: file content required")
	}

	sanitized := SanitizeFileName(name)
	upload := &fileUpload{
		field:   "uploadfile",
		name:    sanitized,
		content: content,
		fields:  url.Values{"name": {sanitized}},
	}

	body, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/documents/" + url.PathEscape(documentID) + "/files",
		file:   upload,
	})
	if err != nil {
		return "", err
	}

	var resp fileResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ProtocolError{Msg: "malformed add file response"}
	}
	if resp.ID == "" {
		return "", &ProtocolError{Msg: "file id missing from add response"}
	}
	return resp.ID, nil
}

// ParticipantParams describes one participant to attach to a document. Exactly
// one authentication mode must be supplied: Email, Tel (optionally with
// Callback for SMS authentication), or RecipientID (simple authentication).
type ParticipantParams struct {
	Name        string
	Email       string
	Tel         string
	Callback    bool
	RecipientID string
}

func (p ParticipantParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("cloudsign: participant name required")
	}
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
		return fmt.Errorf("cloudsign: exactly one of email, tel, recipient_id must be set for participant %q", p.Name)
	}
	return nil
}

// AddParticipant attaches a participant to the document and returns the id the
// remote service assigned. When Callback and RecipientID are both supplied,
// callback authentication wins and the recipient id is dropped from the
// payload.
func (c *Client) AddParticipant(ctx context.Context, documentID string, params ParticipantParams) (string, error) {
	if documentID == "" {
		return "", fmt.Errorf("cloudsign: document id required")
	}
	if params.Callback && params.RecipientID != "" {
		c.logger.Printf("cloudsign: participant %q: callback and recipient_id both set, dropping recipient_id", params.Name)
		params.RecipientID = ""
	}
	if err := params.validate(); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("name", params.Name)
	switch {
	case params.Email != "":
		form.Set("email", params.Email)
	case params.Tel != "":
		form.Set("tel", params.Tel)
		if params.Callback {
			form.Set("callback", "true")
		}
	case params.RecipientID != "":
		form.Set("recipient_id", params.RecipientID)
	}

	body, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/documents/" + url.PathEscape(documentID) + "/participants",
		form:   form,
	})
	if err != nil {
		return "", err
	}

	var resp documentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ProtocolError{Msg: "malformed add participant response"}
	}
	return findParticipantID(resp.Participants, params)
}

// findParticipantID locates the id assigned to a just-added participant in the
// participant list CloudSign returns. The remote API does not return the id
// directly; should it ever start to, this is the only function that needs to
// change.
func findParticipantID(participants []participantResponse, params ParticipantParams) (string, error) {
	for _, p := range participants {
		if params.Email != "" && p.Email == params.Email && p.ID != "" {
			return p.ID, nil
		}
		if params.Tel != "" && p.Tel == params.Tel && p.ID != "" {
			return p.ID, nil
		}
	}
	// Fall back to a name match for recipient_id participants, which echo
	// neither email nor tel.
	for _, p := range participants {
		if p.Name == params.Name && p.ID != "" {
			return p.ID, nil
		}
	}
	return "", &ProtocolError{Msg: fmt.Sprintf("participant id for %q not found in response", params.Name)}
}

// WidgetParams places a signature or text widget on a page of an uploaded
// file. Coordinates are in page units with the origin at the top left.
type WidgetParams struct {
	Type             string
	Page             int
	X                int
	Y                int
	ParticipantEmail string
	Text             string
}

// AddWidget places a widget on a file of the document and returns the widget
// id.
func (c *Client) AddWidget(ctx context.Context, documentID, fileID string, params WidgetParams) (string, error) {
	if documentID == "" || fileID == "" {
		return "", fmt.Errorf("cloudsign: document id and file id required")
	}
	if params.Type == "" {
		return "", fmt.Errorf("cloudsign: widget type required")
	}

	payload := map[string]any{
		"type": params.Type,
		"page": params.Page,
		"x":    params.X,
		"y":    params.Y,
	}
	if params.ParticipantEmail != "" {
		payload["email"] = params.ParticipantEmail
	}
	if params.Text != "" {
		payload["text"] = params.Text
	}

	body, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/documents/" + url.PathEscape(documentID) + "/files/" + url.PathEscape(fileID) + "/widgets",
		json:   payload,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ProtocolError{Msg: "malformed add widget response"}
	}
	if resp.ID == "" {
		return "", &ProtocolError{Msg: "widget id missing from add response"}
	}
	return resp.ID, nil
}

// DocumentUpdate carries the updatable document fields. Zero-valued fields are
// left untouched.
type DocumentUpdate struct {
	Title   string
	Note    string
	Message string
}

// UpdateDocument updates document metadata.
func (c *Client) UpdateDocument(ctx context.Context, documentID string, update DocumentUpdate) error {
	if documentID == "" {
		return fmt.Errorf("cloudsign: document id required")
	}

	form := url.Values{}
	if update.Title != "" {
		form.Set("title", update.Title)
	}
	if update.Note != "" {
		form.Set("note", update.Note)
	}
	if update.Message != "" {
		form.Set("message", update.Message)
	}
	if len(form) == 0 {
		return fmt.Errorf("cloudsign: no document fields to update")
	}

	_, err := c.do(ctx, call{
		method: http.MethodPut,
		path:   "/documents/" + url.PathEscape(documentID),
		form:   form,
	})
	return err
}

// SendDocument submits the document to its participants. Callers must verify
// the document is still a draft first; see EmbeddedSigningFlow.SendDocument
// for the guarded variant.
func (c *Client) SendDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("cloudsign: document id required")
	}
	_, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/documents/" + url.PathEscape(documentID),
	})
	return err
}

// GetDocument fetches the document with its status, participants, and files.
func (c *Client) GetDocument(ctx context.Context, documentID string) (Document, error) {
	if documentID == "" {
		return Document{}, fmt.Errorf("cloudsign: document id required")
	}

	body, err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/documents/" + url.PathEscape(documentID),
	})
	if err != nil {
		return Document{}, err
	}

	var resp documentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Document{}, &ProtocolError{Msg: "malformed document response"}
	}
	if resp.ID == "" {
		return Document{}, &ProtocolError{Msg: "document id missing from response"}
	}
	return resp.toDocument(), nil
}

// SigningURL obtains the embedded-signing URL for a participant. recipientID
// is required only for simple-auth participants and may be empty otherwise.
func (c *Client) SigningURL(ctx context.Context, documentID, participantID, recipientID string) (SigningURL, error) {
	if documentID == "" || participantID == "" {
		return SigningURL{}, fmt.Errorf("cloudsign: document id and participant id required")
	}

	form := url.Values{}
	if recipientID != "" {
		form.Set("recipient_id", recipientID)
	}

	body, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/documents/" + url.PathEscape(documentID) + "/participants/" + url.PathEscape(participantID) + "/signing_url",
		form:   form,
	})
	if err != nil {
		return SigningURL{}, err
	}

	var resp struct {
		URL       string `json:"url"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return SigningURL{}, &ProtocolError{Msg: "malformed signing url response"}
	}
	if resp.URL == "" {
		return SigningURL{}, &ProtocolError{Msg: "signing url missing from response"}
	}

	result := SigningURL{URL: resp.URL}
	if resp.ExpiresAt != "" {
		expires, err := parseExpiry(resp.ExpiresAt)
		if err != nil {
			return SigningURL{}, &ProtocolError{Msg: "unparseable signing url expiry " + strconv.Quote(resp.ExpiresAt)}
		}
		result.ExpiresAt = expires
	}
	return result, nil
}

func parseExpiry(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cloudsign: unrecognized timestamp %q", raw)
}

// Ensure Client satisfies the interface the signing flow consumes.
var _ DocumentAPI = (*Client)(nil)

// DownloadDocument fetches the signed PDF bytes.
func (c *Client) DownloadDocument(ctx context.Context, documentID string) ([]byte, error) {
	if documentID == "" {
		return nil, fmt.Errorf("cloudsign: document id required")
	}
	return c.do(ctx, call{
		method: http.MethodGet,
		path:   "/documents/" + url.PathEscape(documentID) + "/file",
	})
}
