// Package store persists the development backend's data in sqlite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/thoughtcaptcha/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prompt_text TEXT NOT NULL,
		is_current INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_id INTEGER,
		original_content TEXT NOT NULL,
		generated_question TEXT NOT NULL DEFAULT '',
		student_response TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (assignment_id) REFERENCES assignments(id)
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSubmission stores a new submission and returns its ID.
func (s *Store) CreateSubmission(content string, assignmentID *int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO submissions (assignment_id, original_content, created_at) VALUES (?, ?, ?)`,
		assignmentID, content, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSubmission returns a submission by ID.
func (s *Store) GetSubmission(id int64) (model.Submission, error) {
	var sub model.Submission
	err := s.db.QueryRow(
		`SELECT id, assignment_id, original_content, generated_question, student_response, created_at
		 FROM submissions WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.AssignmentID, &sub.OriginalContent, &sub.GeneratedQuestion,
		&sub.StudentResponse, &sub.CreatedAt)
	return sub, err
}

// ListSubmissions returns all submissions, newest first.
func (s *Store) ListSubmissions() ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, assignment_id, original_content, generated_question, student_response, created_at
		 FROM submissions ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.AssignmentID, &sub.OriginalContent,
			&sub.GeneratedQuestion, &sub.StudentResponse, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SetGeneratedQuestion records the follow-up question generated for a
// submission.
func (s *Store) SetGeneratedQuestion(id int64, question string) error {
	_, err := s.db.Exec(`UPDATE submissions SET generated_question = ? WHERE id = ?`, question, id)
	return err
}

// SetStudentResponse records the student's verification response.
func (s *Store) SetStudentResponse(id int64, response string) error {
	_, err := s.db.Exec(`UPDATE submissions SET student_response = ? WHERE id = ?`, response, id)
	return err
}

// CreateAssignment stores a new assignment. When isCurrent is set, any
// previously current assignment is demoted in the same transaction.
func (s *Store) CreateAssignment(promptText string, isCurrent bool) (model.Assignment, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return model.Assignment{}, err
	}
	defer tx.Rollback()

	if isCurrent {
		if _, err := tx.Exec(`UPDATE assignments SET is_current = 0`); err != nil {
			return model.Assignment{}, err
		}
	}

	now := time.Now()
	res, err := tx.Exec(
		`INSERT INTO assignments (prompt_text, is_current, created_at) VALUES (?, ?, ?)`,
		promptText, isCurrent, now,
	)
	if err != nil {
		return model.Assignment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Assignment{}, err
	}
	return model.Assignment{ID: id, PromptText: promptText, IsCurrent: isCurrent, CreatedAt: now}, nil
}

// ListAssignments returns all assignments, newest first.
func (s *Store) ListAssignments() ([]model.Assignment, error) {
	rows, err := s.db.Query(
		`SELECT id, prompt_text, is_current, created_at FROM assignments ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var as []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.PromptText, &a.IsCurrent, &a.CreatedAt); err != nil {
			return nil, err
		}
		as = append(as, a)
	}
	return as, rows.Err()
}

// GetAssignment returns an assignment by ID.
func (s *Store) GetAssignment(id int64) (model.Assignment, error) {
	var a model.Assignment
	err := s.db.QueryRow(
		`SELECT id, prompt_text, is_current, created_at FROM assignments WHERE id = ?`, id,
	).Scan(&a.ID, &a.PromptText, &a.IsCurrent, &a.CreatedAt)
	return a, err
}

// CurrentAssignment returns the single active assignment, or nil when
// none is marked current.
func (s *Store) CurrentAssignment() (*model.Assignment, error) {
	var a model.Assignment
	err := s.db.QueryRow(
		`SELECT id, prompt_text, is_current, created_at FROM assignments WHERE is_current = 1 LIMIT 1`,
	).Scan(&a.ID, &a.PromptText, &a.IsCurrent, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetCurrentAssignment marks one assignment as current and demotes all
// others.
func (s *Store) SetCurrentAssignment(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE assignments SET is_current = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.Exec(`UPDATE assignments SET is_current = 0 WHERE id != ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetSystemPrompt upserts the question-generation system prompt.
func (s *Store) SetSystemPrompt(text string) error {
	_, err := s.db.Exec(
		`INSERT INTO app_metadata (key, value) VALUES ('system_prompt', ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		text, text,
	)
	return err
}

// GetSystemPrompt returns the stored system prompt, or the empty string
// when none is set.
func (s *Store) GetSystemPrompt() (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_metadata WHERE key = 'system_prompt'`).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
