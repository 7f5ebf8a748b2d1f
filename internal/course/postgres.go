package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xeipuuv/gojsonschema"
)

const dbTimeout = 5 * time.Second

// optionsSchema is what a stored options column must look like before it is
// decoded. The option count is checked later by Valid.
const optionsSchema = `{
  "type": "array",
  "items": {"type": "string"}
}`

// PostgresSource resolves courses owned by the caller from PostgreSQL.
type PostgresSource struct {
	pool    *pgxpool.Pool
	options *gojsonschema.Schema
}

// NewPostgresSource creates a store-backed source.
func NewPostgresSource(pool *pgxpool.Pool) (*PostgresSource, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	schema, err := compileOptionsSchema()
	if err != nil {
		return nil, err
	}
	return &PostgresSource{pool: pool, options: schema}, nil
}

func compileOptionsSchema() (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(optionsSchema))
	if err != nil {
		return nil, fmt.Errorf("compile options schema: %w", err)
	}
	return schema, nil
}

// Resolve loads the course scoped to id.UserID, then its questions in
// creation order. A course owned by someone else is reported as not found.
func (s *PostgresSource) Resolve(ctx context.Context, courseID string, id Identity) (Course, []Question, error) {
	if id.IsGuest() {
		return Course{}, nil, ErrCourseNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var c Course
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, description, file_url, file_type, progress, created_at, updated_at
		 FROM courses
		 WHERE id = $1 AND user_id = $2
		 LIMIT 1`,
		courseID,
		id.UserID,
	).Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.Description,
		&c.FileURL,
		&c.FileType,
		&c.Progress,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Course{}, nil, ErrCourseNotFound
		}
		return Course{}, nil, unavailable("get course", err)
	}

	raw, err := s.listQuestions(ctx, c.ID)
	if err != nil {
		return Course{}, nil, err
	}

	questions, err := build(raw)
	if err != nil {
		return Course{}, nil, err
	}
	if dropped := len(raw) - len(questions); dropped > 0 {
		slog.Warn("dropped malformed quiz questions",
			"course_id", c.ID,
			"dropped", dropped,
			"kept", len(questions),
		)
	}
	return c, questions, nil
}

func (s *PostgresSource) listQuestions(ctx context.Context, courseID string) ([]RawQuestion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, question, options, correct_answer, explanation
		 FROM quiz_questions
		 WHERE course_id = $1
		 ORDER BY created_at ASC, id ASC`,
		courseID,
	)
	if err != nil {
		return nil, unavailable("query questions", err)
	}
	defer rows.Close()

	var raw []RawQuestion
	for rows.Next() {
		var (
			q           RawQuestion
			prompt      *string
			options     []byte
			correct     *int
			explanation *string
		)
		if err := rows.Scan(&q.ID, &prompt, &options, &correct, &explanation); err != nil {
			return nil, unavailable("scan question", err)
		}
		if prompt != nil {
			q.Prompt = *prompt
		}
		if explanation != nil {
			q.Explanation = *explanation
		}
		q.CorrectAnswer = correct
		q.Options = s.decodeOptions(q.ID, options)
		raw = append(raw, q)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate questions", err)
	}
	return raw, nil
}

// decodeOptions returns nil for anything that is not a JSON array of strings,
// which makes the record fail validation instead of failing the load.
func (s *PostgresSource) decodeOptions(questionID string, data []byte) []string {
	return decodeOptions(s.options, questionID, data)
}

func decodeOptions(schema *gojsonschema.Schema, questionID string, data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil || !result.Valid() {
		slog.Debug("question options rejected", "question_id", questionID, "error", err)
		return nil
	}
	var options []string
	if err := json.Unmarshal(data, &options); err != nil {
		return nil
	}
	return options
}
