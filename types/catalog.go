package types

import "time"

// Person is an actor or producer credited on movies.
type Person struct {
	// ID is the unique identifier of the person.
	ID int64 `json:"id" db:"id"`

	// Name is the credited name of the person.
	Name string `json:"name" db:"name"`

	// DateOfBirth is the person's birth date.
	DateOfBirth time.Time `json:"date_of_birth" db:"date_of_birth"`

	// DateOfDeath is nil for living people.
	DateOfDeath *time.Time `json:"date_of_death" db:"date_of_death"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Movie represents a film in the catalog together with its credits.
type Movie struct {
	// ID is the unique identifier of the movie.
	ID int64 `json:"id" db:"id"`

	Title    string `json:"title" db:"title"`
	Genre    string `json:"genre" db:"genre"`
	Year     int    `json:"year" db:"year"`
	Studio   string `json:"studio" db:"studio"`
	Director string `json:"director" db:"director"`

	// Producers and Cast are loaded from the movie_producers and
	// movie_cast join tables.
	Producers []Person `json:"producers" db:"-"`
	Cast      []Person `json:"cast" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Test is a named movie test listed under /movies/tests.
type Test struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// QuizQuestion represents a single question that can be part of quizzes.
type QuizQuestion struct {
	// ID is the unique identifier of the question.
	ID int64 `json:"id" db:"id"`

	// Question is the question text shown to the player.
	Question string `json:"question" db:"question"`

	// QuestionType is a free-form label such as "multiple_choice".
	QuestionType string `json:"question_type" db:"question_type"`

	Difficulty string `json:"difficulty" db:"difficulty"`

	// Points is the number of points awarded for a correct answer.
	Points int `json:"points" db:"points"`

	Answer string `json:"answer" db:"answer"`

	CreatedAt time.Time `json:"-" db:"created_at"`
}

// Quiz groups a set of questions under a title.
type Quiz struct {
	ID          int64  `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`
	Difficulty  string `json:"difficulty" db:"difficulty"`

	// QuestionIDs references rows of quiz_questions through quiz_question_links.
	QuestionIDs []int64 `json:"question_ids" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
