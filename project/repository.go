package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("project: not found")
	ErrDocumentExists = errors.New("project: document already assigned")
)

type CreateParams struct {
	Title        string
	Description  string
	Amount       *int64
	DueDate      *time.Time
	Participants []Participant
	Files        []ContractFile
}

type UpdateParams struct {
	Title       string
	Description string
	Amount      *int64
	DueDate     *time.Time
}

type Filters struct {
	Search     string
	DueBefore  *time.Time
	DueAfter   *time.Time
	SentOnly   bool
	DraftsOnly bool
	Page       int
	PageSize   int
}

type Repository interface {
	Create(ctx context.Context, id string, params CreateParams) (Project, error)
	Get(ctx context.Context, id string) (Project, error)
	List(ctx context.Context, filters Filters) ([]Project, int, error)
	Update(ctx context.Context, id string, params UpdateParams) (Project, error)
	Delete(ctx context.Context, id string) error
	FileContents(ctx context.Context, projectID string) ([]ContractFile, error)
	SetDocumentID(ctx context.Context, projectID, documentID string) error
	SetParticipantRemoteID(ctx context.Context, participantID, remoteID string) error
	AppendEvent(ctx context.Context, projectID, eventType string, payload map[string]any) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const projectColumns = `id, title, description, amount, due_date, cloudsign_document_id, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, id string, params CreateParams) (Project, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Project{}, fmt.Errorf("project: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertProject = `
        INSERT INTO projects (id, title, description, amount, due_date)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING ` + projectColumns

	row := tx.QueryRow(ctx, insertProject, id, params.Title, params.Description, params.Amount, params.DueDate)
	proj, err := scanProject(row)
	if err != nil {
		return Project{}, fmt.Errorf("project: insert: %w", err)
	}

	const insertParticipant = `
        INSERT INTO participants (id, project_id, name, email, tel, recipient_id, callback, embedded_signer, sign_order)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, project_id, name, email, tel, recipient_id, callback, embedded_signer, sign_order, cloudsign_participant_id, created_at
    `
	for i, p := range params.Participants {
		row := tx.QueryRow(ctx, insertParticipant, p.ID, proj.ID, p.Name, p.Email, p.Tel, p.RecipientID, p.Callback, p.EmbeddedSigner, i+1)
		saved, err := scanParticipant(row)
		if err != nil {
			return Project{}, fmt.Errorf("project: insert participant: %w", err)
		}
		proj.Participants = append(proj.Participants, saved)
	}

	const insertFile = `
        INSERT INTO contract_files (id, project_id, file_name, content)
        VALUES ($1, $2, $3, $4)
        RETURNING id, project_id, file_name, created_at
    `
	for _, f := range params.Files {
		var saved ContractFile
		err := tx.QueryRow(ctx, insertFile, f.ID, proj.ID, f.FileName, f.Content).
			Scan(&saved.ID, &saved.ProjectID, &saved.FileName, &saved.CreatedAt)
		if err != nil {
			return Project{}, fmt.Errorf("project: insert file: %w", err)
		}
		proj.Files = append(proj.Files, saved)
	}

	payload := map[string]any{"title": proj.Title}
	if _, err := tx.Exec(ctx, `INSERT INTO project_events (project_id, type, payload) VALUES ($1, 'PROJECT_CREATED', $2::jsonb)`, proj.ID, mustJSON(payload)); err != nil {
		return Project{}, fmt.Errorf("project: event insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Project{}, fmt.Errorf("project: commit: %w", err)
	}

	return proj, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	proj, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("project: get: %w", err)
	}

	const participantQuery = `
        SELECT id, project_id, name, email, tel, recipient_id, callback, embedded_signer, sign_order, cloudsign_participant_id, created_at
        FROM participants
        WHERE project_id = $1
        ORDER BY sign_order
    `
	rows, err := r.pool.Query(ctx, participantQuery, id)
	if err != nil {
		return Project{}, fmt.Errorf("project: query participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return Project{}, err
		}
		proj.Participants = append(proj.Participants, p)
	}

	fileRows, err := r.pool.Query(ctx, `SELECT id, project_id, file_name, created_at FROM contract_files WHERE project_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return Project{}, fmt.Errorf("project: query files: %w", err)
	}
	defer fileRows.Close()
	for fileRows.Next() {
		var f ContractFile
		if err := fileRows.Scan(&f.ID, &f.ProjectID, &f.FileName, &f.CreatedAt); err != nil {
			return Project{}, err
		}
		proj.Files = append(proj.Files, f)
	}

	return proj, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Project, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}

	if filters.Search != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.DueBefore != nil {
		where = append(where, fmt.Sprintf("due_date <= $%d", len(args)+1))
		args = append(args, *filters.DueBefore)
	}
	if filters.DueAfter != nil {
		where = append(where, fmt.Sprintf("due_date >= $%d", len(args)+1))
		args = append(args, *filters.DueAfter)
	}
	if filters.SentOnly {
		where = append(where, "cloudsign_document_id IS NOT NULL")
	}
	if filters.DraftsOnly {
		where = append(where, "cloudsign_document_id IS NULL")
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")
	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`SELECT %s FROM projects%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, projectColumns, whereClause, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("project: query list: %w", err)
	}
	defer rows.Close()

	list := []Project{}
	for rows.Next() {
		proj, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, proj)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM projects%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("project: count list: %w", err)
	}

	return list, total, nil
}

func (r *PGRepository) Update(ctx context.Context, id string, params UpdateParams) (Project, error) {
	const query = `
		UPDATE projects
		SET title = $2,
		    description = $3,
		    amount = $4,
		    due_date = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + projectColumns

	row := r.pool.QueryRow(ctx, query, id, params.Title, params.Description, params.Amount, params.DueDate)
	proj, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("project: update: %w", err)
	}
	return proj, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("project: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FileContents loads the stored PDFs including their bytes, in upload order.
func (r *PGRepository) FileContents(ctx context.Context, projectID string) ([]ContractFile, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, project_id, file_name, content, created_at FROM contract_files WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("project: query file contents: %w", err)
	}
	defer rows.Close()

	files := []ContractFile{}
	for rows.Next() {
		var f ContractFile
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.FileName, &f.Content, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// SetDocumentID records the remote document id. The guard only assigns when
// no document exists yet, so a concurrent double-send loses cleanly.
func (r *PGRepository) SetDocumentID(ctx context.Context, projectID, documentID string) error {
	const query = `
		UPDATE projects
		SET cloudsign_document_id = $2, updated_at = now()
		WHERE id = $1 AND cloudsign_document_id IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, projectID, documentID)
	if err != nil {
		return fmt.Errorf("project: set document id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
			return fmt.Errorf("project: set document id: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrDocumentExists
	}
	return nil
}

func (r *PGRepository) SetParticipantRemoteID(ctx context.Context, participantID, remoteID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE participants SET cloudsign_participant_id = $2 WHERE id = $1`, participantID, remoteID)
	if err != nil {
		return fmt.Errorf("project: set participant remote id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) AppendEvent(ctx context.Context, projectID, eventType string, payload map[string]any) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO project_events (project_id, type, payload) VALUES ($1, $2, $3::jsonb)`, projectID, eventType, mustJSON(payload))
	if err != nil {
		return fmt.Errorf("project: append event: %w", err)
	}
	return nil
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	return p, row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Amount,
		&p.DueDate,
		&p.CloudSignDocumentID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

func scanParticipant(row pgx.Row) (Participant, error) {
	var p Participant
	return p, row.Scan(
		&p.ID,
		&p.ProjectID,
		&p.Name,
		&p.Email,
		&p.Tel,
		&p.RecipientID,
		&p.Callback,
		&p.EmbeddedSigner,
		&p.SignOrder,
		&p.CloudSignParticipantID,
		&p.CreatedAt,
	)
}

func mustJSON(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(b)
}
