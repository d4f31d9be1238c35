package types

import "time"

// Rank is the tier label derived from a user's cumulative points.
type Rank string

const (
	RankNewbie       Rank = "Newbie"
	RankIntermediate Rank = "Intermediate"
	RankPro          Rank = "Pro"
	RankLegend       Rank = "Legend"
)

// Point thresholds for each rank, evaluated highest first.
const (
	LegendThreshold       = 1000
	ProThreshold          = 500
	IntermediateThreshold = 100
)

// RankFor returns the rank that corresponds to a point total.
func RankFor(points int) Rank {
	switch {
	case points >= LegendThreshold:
		return RankLegend
	case points >= ProThreshold:
		return RankPro
	case points >= IntermediateThreshold:
		return RankIntermediate
	default:
		return RankNewbie
	}
}

// User represents an account in the system.
// It contains identity, capability flags, game progression, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Username is the unique public name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's case-folded email address. It is unique and
	// is the identifier used to log in.
	Email string `json:"email" db:"email"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// IsStaff, IsSuperuser and IsActive are the only capability checks
	// the system knows about. Inactive users cannot log in.
	IsStaff     bool `json:"-" db:"is_staff"`
	IsSuperuser bool `json:"-" db:"is_superuser"`
	IsActive    bool `json:"-" db:"is_active"`

	// TotalPoints is the overall score. It only grows, through AwardPoints.
	TotalPoints      int `json:"total_points" db:"total_points"`
	GamesPlayed      int `json:"games_played" db:"games_played"`
	QuizzesCompleted int `json:"quizzes_completed" db:"quizzes_completed"`

	// Rank is derived from TotalPoints and is never set from outside input.
	Rank Rank `json:"rank" db:"rank"`

	// Badges is the ordered list of badge labels earned by the user.
	Badges []string `json:"badges" db:"badges"`

	// DateJoined is the timestamp when the account was created.
	DateJoined time.Time `json:"date_joined" db:"date_joined"`

	// LastLogin is the timestamp of the most recent successful login.
	LastLogin *time.Time `json:"last_login" db:"last_login"`
}

// AwardPoints adds delta to the user's total and recomputes the rank.
// Callers guarantee delta >= 0.
func (u *User) AwardPoints(delta int) {
	u.TotalPoints += delta
	u.RecomputeRank()
}

// RecomputeRank sets Rank from TotalPoints. Running it repeatedly at the
// same point total always yields the same rank.
func (u *User) RecomputeRank() {
	u.Rank = RankFor(u.TotalPoints)
}

// AddBadges appends labels the user does not have yet, preserving order.
func (u *User) AddBadges(labels ...string) {
	seen := make(map[string]struct{}, len(u.Badges))
	for _, b := range u.Badges {
		seen[b] = struct{}{}
	}
	for _, label := range labels {
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		u.Badges = append(u.Badges, label)
	}
}

// RevokedToken is an entry of the refresh token revocation set.
type RevokedToken struct {
	TokenID   string    `json:"token_id" db:"token_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	RevokedAt time.Time `json:"revoked_at" db:"revoked_at"`
}
