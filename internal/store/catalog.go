package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cinequiz/apiserver/types"
	"github.com/samber/oops"
)

// MovieRecord is a movie as stored, with credits referenced by person id.
type MovieRecord struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Genre       string  `json:"genre"`
	Year        int     `json:"year"`
	Studio      string  `json:"studio"`
	Director    string  `json:"director"`
	ProducerIDs []int64 `json:"producers"`
	CastIDs     []int64 `json:"cast"`
}

// CatalogImport is a full catalog snapshot loaded by the fixture loader.
type CatalogImport struct {
	People        []types.Person       `json:"people"`
	Movies        []MovieRecord        `json:"movies"`
	Tests         []types.Test         `json:"tests"`
	QuizQuestions []types.QuizQuestion `json:"quiz_questions"`
	Quizzes       []types.Quiz         `json:"quizzes"`
}

// ImportSummary counts rows written by Import.
type ImportSummary struct {
	People        int
	Movies        int
	Tests         int
	QuizQuestions int
	Quizzes       int
}

// CatalogRepository reads movies, tests and quizzes.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ListMovies(ctx context.Context) ([]types.Movie, error) {
	const query = `
		SELECT id, title, genre, year, studio, director, created_at, updated_at
		FROM movies
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, oops.Code("MOVIE_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	movies := make([]types.Movie, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var movie types.Movie
		if err := rows.Scan(
			&movie.ID,
			&movie.Title,
			&movie.Genre,
			&movie.Year,
			&movie.Studio,
			&movie.Director,
			&movie.CreatedAt,
			&movie.UpdatedAt,
		); err != nil {
			return nil, oops.Code("MOVIE_LIST_FAILED").Wrap(err)
		}
		movie.Producers = []types.Person{}
		movie.Cast = []types.Person{}
		index[movie.ID] = len(movies)
		movies = append(movies, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("MOVIE_LIST_FAILED").Wrap(err)
	}
	if len(movies) == 0 {
		return movies, nil
	}

	producers, err := r.credits(ctx, "movie_producers")
	if err != nil {
		return nil, err
	}
	for movieID, people := range producers {
		if i, ok := index[movieID]; ok {
			movies[i].Producers = people
		}
	}

	cast, err := r.credits(ctx, "movie_cast")
	if err != nil {
		return nil, err
	}
	for movieID, people := range cast {
		if i, ok := index[movieID]; ok {
			movies[i].Cast = people
		}
	}

	return movies, nil
}

// credits loads every person linked through the given join table, keyed
// by movie id. table is one of the two fixed credit tables.
func (r *CatalogRepository) credits(ctx context.Context, table string) (map[int64][]types.Person, error) {
	query := `
		SELECT c.movie_id, p.id, p.name, p.date_of_birth, p.date_of_death, p.created_at, p.updated_at
		FROM ` + table + ` c
		JOIN people p ON p.id = c.person_id
		ORDER BY c.movie_id, p.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, oops.Code("MOVIE_CREDITS_FAILED").With("table", table).Wrap(err)
	}
	defer rows.Close()

	credits := make(map[int64][]types.Person)
	for rows.Next() {
		var (
			movieID     int64
			person      types.Person
			dateOfDeath sql.NullTime
		)
		if err := rows.Scan(
			&movieID,
			&person.ID,
			&person.Name,
			&person.DateOfBirth,
			&dateOfDeath,
			&person.CreatedAt,
			&person.UpdatedAt,
		); err != nil {
			return nil, oops.Code("MOVIE_CREDITS_FAILED").With("table", table).Wrap(err)
		}
		if dateOfDeath.Valid {
			d := dateOfDeath.Time
			person.DateOfDeath = &d
		}
		credits[movieID] = append(credits[movieID], person)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("MOVIE_CREDITS_FAILED").With("table", table).Wrap(err)
	}
	return credits, nil
}

func (r *CatalogRepository) ListTests(ctx context.Context) ([]types.Test, error) {
	const query = `SELECT id, name, description, created_at FROM tests ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, oops.Code("TEST_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	tests := make([]types.Test, 0)
	for rows.Next() {
		var test types.Test
		if err := rows.Scan(&test.ID, &test.Name, &test.Description, &test.CreatedAt); err != nil {
			return nil, oops.Code("TEST_LIST_FAILED").Wrap(err)
		}
		tests = append(tests, test)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TEST_LIST_FAILED").Wrap(err)
	}
	return tests, nil
}

const quizQuestionColumns = `id, question, question_type, difficulty, points, answer, created_at`

func scanQuizQuestion(row rowScanner) (types.QuizQuestion, error) {
	var q types.QuizQuestion
	err := row.Scan(&q.ID, &q.Question, &q.QuestionType, &q.Difficulty, &q.Points, &q.Answer, &q.CreatedAt)
	return q, err
}

func (r *CatalogRepository) ListQuizQuestions(ctx context.Context) ([]types.QuizQuestion, error) {
	query := `SELECT ` + quizQuestionColumns + ` FROM quiz_questions ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, oops.Code("QUIZ_QUESTION_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	questions := make([]types.QuizQuestion, 0)
	for rows.Next() {
		q, err := scanQuizQuestion(rows)
		if err != nil {
			return nil, oops.Code("QUIZ_QUESTION_LIST_FAILED").Wrap(err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("QUIZ_QUESTION_LIST_FAILED").Wrap(err)
	}
	return questions, nil
}

func (r *CatalogRepository) GetQuizQuestion(ctx context.Context, id int64) (types.QuizQuestion, error) {
	query := `SELECT ` + quizQuestionColumns + ` FROM quiz_questions WHERE id = $1`
	q, err := scanQuizQuestion(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.QuizQuestion{}, ErrNotFound
		}
		return types.QuizQuestion{}, oops.Code("QUIZ_QUESTION_GET_FAILED").With("id", id).Wrap(err)
	}
	return q, nil
}

func (r *CatalogRepository) ListQuizzes(ctx context.Context) ([]types.Quiz, error) {
	const query = `SELECT id, title, description, difficulty, created_at FROM quizzes ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, oops.Code("QUIZ_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	quizzes := make([]types.Quiz, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var quiz types.Quiz
		if err := rows.Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.Difficulty, &quiz.CreatedAt); err != nil {
			return nil, oops.Code("QUIZ_LIST_FAILED").Wrap(err)
		}
		quiz.QuestionIDs = []int64{}
		index[quiz.ID] = len(quizzes)
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("QUIZ_LIST_FAILED").Wrap(err)
	}
	if len(quizzes) == 0 {
		return quizzes, nil
	}

	const linkQuery = `SELECT quiz_id, question_id FROM quiz_question_links ORDER BY quiz_id, question_id`
	links, err := r.db.QueryContext(ctx, linkQuery)
	if err != nil {
		return nil, oops.Code("QUIZ_LIST_FAILED").With("operation", "load links").Wrap(err)
	}
	defer links.Close()

	for links.Next() {
		var quizID, questionID int64
		if err := links.Scan(&quizID, &questionID); err != nil {
			return nil, oops.Code("QUIZ_LIST_FAILED").With("operation", "load links").Wrap(err)
		}
		if i, ok := index[quizID]; ok {
			quizzes[i].QuestionIDs = append(quizzes[i].QuestionIDs, questionID)
		}
	}
	if err := links.Err(); err != nil {
		return nil, oops.Code("QUIZ_LIST_FAILED").With("operation", "load links").Wrap(err)
	}
	return quizzes, nil
}

// Import writes a catalog snapshot in one transaction, keeping the ids it
// carries. Rows whose id already exists are left untouched. Sequences are
// advanced past the imported ids afterwards.
func (r *CatalogRepository) Import(ctx context.Context, snapshot CatalogImport) (ImportSummary, error) {
	var summary ImportSummary

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, oops.Code("CATALOG_IMPORT_FAILED").With("operation", "begin").Wrap(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	exec := func(step, query string, args ...any) (int64, error) {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			if classified := classifyError(err); isConstraintError(classified) {
				return 0, oops.Code("CATALOG_IMPORT_FAILED").With("operation", step).Wrap(classified)
			}
			return 0, oops.Code("CATALOG_IMPORT_FAILED").With("operation", step).Wrap(err)
		}
		return result.RowsAffected()
	}

	for _, p := range snapshot.People {
		n, err := exec("insert person", `
			INSERT INTO people (id, name, date_of_birth, date_of_death, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Name, p.DateOfBirth, p.DateOfDeath, now)
		if err != nil {
			return summary, err
		}
		summary.People += int(n)
	}

	for _, m := range snapshot.Movies {
		n, err := exec("insert movie", `
			INSERT INTO movies (id, title, genre, year, studio, director, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (id) DO NOTHING`,
			m.ID, m.Title, m.Genre, m.Year, m.Studio, m.Director, now)
		if err != nil {
			return summary, err
		}
		summary.Movies += int(n)

		for _, personID := range m.ProducerIDs {
			if _, err := exec("link producer", `
				INSERT INTO movie_producers (movie_id, person_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, m.ID, personID); err != nil {
				return summary, err
			}
		}
		for _, personID := range m.CastIDs {
			if _, err := exec("link cast", `
				INSERT INTO movie_cast (movie_id, person_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, m.ID, personID); err != nil {
				return summary, err
			}
		}
	}

	for _, t := range snapshot.Tests {
		n, err := exec("insert test", `
			INSERT INTO tests (id, name, description, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			t.ID, t.Name, t.Description, now)
		if err != nil {
			return summary, err
		}
		summary.Tests += int(n)
	}

	for _, q := range snapshot.QuizQuestions {
		n, err := exec("insert quiz question", `
			INSERT INTO quiz_questions (id, question, question_type, difficulty, points, answer, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			q.ID, q.Question, q.QuestionType, q.Difficulty, q.Points, q.Answer, now)
		if err != nil {
			return summary, err
		}
		summary.QuizQuestions += int(n)
	}

	for _, quiz := range snapshot.Quizzes {
		n, err := exec("insert quiz", `
			INSERT INTO quizzes (id, title, description, difficulty, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			quiz.ID, quiz.Title, quiz.Description, quiz.Difficulty, now)
		if err != nil {
			return summary, err
		}
		summary.Quizzes += int(n)

		for _, questionID := range quiz.QuestionIDs {
			if _, err := exec("link quiz question", `
				INSERT INTO quiz_question_links (quiz_id, question_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, quiz.ID, questionID); err != nil {
				return summary, err
			}
		}
	}

	for _, table := range []string{"people", "movies", "tests", "quiz_questions", "quizzes"} {
		query := `SELECT setval(pg_get_serial_sequence('` + table + `', 'id'),
			COALESCE((SELECT MAX(id) FROM ` + table + `), 0) + 1, false)`
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return summary, oops.Code("CATALOG_IMPORT_FAILED").
				With("operation", "reset sequence").
				With("table", table).
				Wrap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return summary, oops.Code("CATALOG_IMPORT_FAILED").With("operation", "commit").Wrap(err)
	}
	return summary, nil
}
