package types

// GameKind identifies what kind of play produced a GameResult.
type GameKind string

const (
	GameKindGame GameKind = "game"
	GameKindQuiz GameKind = "quiz"
)

// Valid reports whether k is a known game kind.
func (k GameKind) Valid() bool {
	return k == GameKindGame || k == GameKindQuiz
}

// GameResult is published once a user finishes a game or a quiz.
// It is the input of the progression engine.
type GameResult struct {
	// UserID identifies the player.
	UserID int64 `json:"user_id"`

	// Kind selects which play counter is incremented.
	Kind GameKind `json:"kind"`

	// Points is the non-negative number of points earned.
	Points int `json:"points"`

	// Badges are labels earned during the play. Labels the user already
	// holds are ignored.
	Badges []string `json:"badges,omitempty"`
}
