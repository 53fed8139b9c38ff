package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// Document processing statuses.
const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

// Support ticket statuses.
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusClosed     = "closed"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account row.
type User struct {
	ID        string
	Email     string
	Role      string
	CreatedAt time.Time
}

// Document captures one uploaded file and its extraction state.
type Document struct {
	ID            string
	UserID        string
	OriginalName  string
	FileName      string
	FilePath      string
	MimeType      string
	FileSize      int64
	Status        string
	ExtractedText sql.NullString
	ErrorMessage  sql.NullString
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Notification is a per-user event message.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// FAQ is a question/answer pair maintained by admins.
type FAQ struct {
	ID        string
	Question  string
	Answer    string
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SupportTicket is a user-filed support request.
type SupportTicket struct {
	ID        string
	Reference string
	UserID    string
	Subject   string
	Message   string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnalyticsCounts aggregates dashboard numbers for the admin console.
type AnalyticsCounts struct {
	Users               int64
	DocumentsByStatus   map[string]int64
	OpenTickets         int64
	UnreadNotifications int64
}

// New constructs the Store from DATABASE_URL or POSTGRES_* env vars.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx, `SELECT id, email, role, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt)
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, email, role, created_at FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserRole(ctx context.Context, id, role string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET role=$2 WHERE id=$1`, id, role)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// Document operations

func (s *Store) CreateDocument(ctx context.Context, d Document) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO documents (user_id, original_name, file_name, file_path, mime_type, file_size, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		d.UserID, d.OriginalName, d.FileName, d.FilePath, d.MimeType, d.FileSize, DocumentStatusUploaded).Scan(&id)
	return id, err
}

func (s *Store) GetDocument(ctx context.Context, id string) (Document, error) {
	var d Document
	err := s.DB.QueryRowContext(ctx, `SELECT id, user_id, original_name, file_name, file_path, mime_type, file_size, status, extracted_text, error_message, created_at, updated_at
FROM documents WHERE id=$1 AND deleted_at IS NULL`, id).
		Scan(&d.ID, &d.UserID, &d.OriginalName, &d.FileName, &d.FilePath, &d.MimeType, &d.FileSize, &d.Status, &d.ExtractedText, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *Store) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, original_name, file_name, file_path, mime_type, file_size, status, extracted_text, error_message, created_at, updated_at
FROM documents WHERE user_id=$1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.OriginalName, &d.FileName, &d.FilePath, &d.MimeType, &d.FileSize, &d.Status, &d.ExtractedText, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDocumentStatus transitions the processing status. When from is
// non-empty the update only applies if the current status matches, so
// concurrent transitions cannot stomp each other.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id, from, to string) error {
	var res sql.Result
	var err error
	if from == "" {
		res, err = s.DB.ExecContext(ctx, `UPDATE documents SET status=$2, updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id, to)
	} else {
		res, err = s.DB.ExecContext(ctx, `UPDATE documents SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2 AND deleted_at IS NULL`, id, from, to)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// FinishDocument records the extraction outcome. Only a document still in
// processing can be finished; anything else returns sql.ErrNoRows so a late
// or repeated callback cannot overwrite a settled result.
func (s *Store) FinishDocument(ctx context.Context, id, status, text, errMsg string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE documents SET status=$2, extracted_text=$3, error_message=NULLIF($4,''), updated_at=NOW() WHERE id=$1 AND status=$5 AND deleted_at IS NULL`,
		id, status, text, errMsg, DocumentStatusProcessing)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

func (s *Store) SoftDeleteDocument(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE documents SET deleted_at=NOW() WHERE id=$1 AND user_id=$2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// ListStuckDocuments returns documents that entered processing before the cutoff.
func (s *Store) ListStuckDocuments(ctx context.Context, before time.Time) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, original_name, file_name, file_path, mime_type, file_size, status, extracted_text, error_message, created_at, updated_at
FROM documents WHERE status=$1 AND updated_at <= $2 AND deleted_at IS NULL`, DocumentStatusProcessing, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.OriginalName, &d.FileName, &d.FilePath, &d.MimeType, &d.FileSize, &d.Status, &d.ExtractedText, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PurgeDeletedDocuments removes soft-deleted rows older than the cutoff and
// returns their file paths so storage can be cleaned up alongside.
func (s *Store) PurgeDeletedDocuments(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `DELETE FROM documents WHERE id IN (
    SELECT id FROM documents
    WHERE deleted_at IS NOT NULL AND deleted_at <= $1
    ORDER BY deleted_at ASC
    LIMIT $2
) RETURNING file_path`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Notification operations

func (s *Store) CreateNotification(ctx context.Context, userID, title, message string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO notifications (user_id, title, message) VALUES ($1,$2,$3) RETURNING id`,
		userID, title, message).Scan(&id)
	return id, err
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, title, message, is_read, created_at
FROM notifications WHERE user_id=$1 ORDER BY is_read ASC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// FAQ operations

func (s *Store) CreateFAQ(ctx context.Context, question, answer, category string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO faqs (question, answer, category) VALUES ($1,$2,$3) RETURNING id`,
		question, answer, category).Scan(&id)
	return id, err
}

func (s *Store) UpdateFAQ(ctx context.Context, id, question, answer, category string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE faqs SET question=$2, answer=$3, category=$4, updated_at=NOW() WHERE id=$1`,
		id, question, answer, category)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

func (s *Store) DeleteFAQ(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM faqs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

func (s *Store) ListFAQs(ctx context.Context) ([]FAQ, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, question, answer, category, created_at, updated_at FROM faqs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FAQ
	for rows.Next() {
		var f FAQ
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer, &f.Category, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) GetFAQ(ctx context.Context, id string) (FAQ, error) {
	var f FAQ
	err := s.DB.QueryRowContext(ctx, `SELECT id, question, answer, category, created_at, updated_at FROM faqs WHERE id=$1`, id).
		Scan(&f.ID, &f.Question, &f.Answer, &f.Category, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

// Support ticket operations

func (s *Store) CreateTicket(ctx context.Context, reference, userID, subject, message string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO support_tickets (reference, user_id, subject, message, status) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		reference, userID, subject, message, TicketStatusOpen).Scan(&id)
	return id, err
}

func (s *Store) ListTickets(ctx context.Context, userID string) ([]SupportTicket, error) {
	var rows *sql.Rows
	var err error
	if userID == "" {
		rows, err = s.DB.QueryContext(ctx, `SELECT id, reference, user_id, subject, message, status, created_at, updated_at
FROM support_tickets ORDER BY created_at DESC`)
	} else {
		rows, err = s.DB.QueryContext(ctx, `SELECT id, reference, user_id, subject, message, status, created_at, updated_at
FROM support_tickets WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SupportTicket
	for rows.Next() {
		var t SupportTicket
		if err := rows.Scan(&t.ID, &t.Reference, &t.UserID, &t.Subject, &t.Message, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTicketStatus(ctx context.Context, id, status string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE support_tickets SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// Analytics

func (s *Store) AnalyticsCounts(ctx context.Context) (AnalyticsCounts, error) {
	out := AnalyticsCounts{DocumentsByStatus: map[string]int64{}}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&out.Users); err != nil {
		return out, err
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return out, err
		}
		out.DocumentsByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM support_tickets WHERE status=$1`, TicketStatusOpen).Scan(&out.OpenTickets); err != nil {
		return out, err
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE is_read=FALSE`).Scan(&out.UnreadNotifications); err != nil {
		return out, err
	}
	return out, nil
}
