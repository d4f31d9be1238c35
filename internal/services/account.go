package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cinequiz/apiserver/internal/logging"
	"github.com/cinequiz/apiserver/internal/metrics"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/cinequiz/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
)

// dummyPassword backs the hash compared against on unknown emails.
const dummyPassword = "cinequiz-unknown-account"

// AccountRepository is the subset of user persistence the account flows need.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// SignupInput is the raw signup form.
type SignupInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
}

// AccountService implements signup, login, refresh and logout.
type AccountService struct {
	repo       AccountRepository
	validator  *PasswordValidator
	tokens     *TokenService
	logger     *zap.Logger
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

type AccountOption func(*AccountService)

func WithBcryptCost(cost int) AccountOption {
	return func(s *AccountService) {
		s.bcryptCost = cost
	}
}

func WithAccountClock(now func() time.Time) AccountOption {
	return func(s *AccountService) {
		s.now = now
	}
}

func WithAccountLogger(logger *zap.Logger) AccountOption {
	return func(s *AccountService) {
		s.logger = logger
	}
}

func NewAccountService(repo AccountRepository, validator *PasswordValidator, tokens *TokenService, opts ...AccountOption) *AccountService {
	s := &AccountService{
		repo:       repo,
		validator:  validator,
		tokens:     tokens,
		logger:     zap.NewNop(),
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "account")

	// Unknown emails are compared against this hash so that a miss costs
	// as much as a wrong password.
	hash, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), s.bcryptCost)
	if err != nil {
		s.logger.Warn("invalid bcrypt cost, using default", zap.Int("cost", s.bcryptCost), zap.Error(err))
		s.bcryptCost = bcrypt.DefaultCost
		hash, _ = bcrypt.GenerateFromPassword([]byte(dummyPassword), s.bcryptCost)
	}
	s.dummyHash = hash
	return s
}

// NormalizeEmail trims and case-folds an email address.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// Signup creates a regular account and returns its id.
func (s *AccountService) Signup(ctx context.Context, input SignupInput) (int64, error) {
	user, err := s.createUser(ctx, input, false, true)
	metrics.ObserveAuth("signup", err, isClientError)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// CreateSuperuser creates a staff account with every capability flag set.
func (s *AccountService) CreateSuperuser(ctx context.Context, input SignupInput, validate bool) (types.User, error) {
	if input.ConfirmPassword == "" {
		input.ConfirmPassword = input.Password
	}
	return s.createUser(ctx, input, true, validate)
}

func (s *AccountService) createUser(ctx context.Context, input SignupInput, superuser, validate bool) (types.User, error) {
	username := strings.TrimSpace(input.Username)
	email := NormalizeEmail(input.Email)
	if username == "" || email == "" || input.Password == "" || input.ConfirmPassword == "" {
		return types.User{}, ErrMissingFields
	}
	if input.Password != input.ConfirmPassword {
		return types.User{}, ErrPasswordMismatch
	}

	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	if validate {
		violations := s.validator.Validate(input.Password, PasswordContext{
			Username:  username,
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		})
		if len(violations) > 0 {
			return types.User{}, &WeakPasswordError{Violations: violations}
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		logging.Error(s.logger, "failed to hash password", err)
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: string(hashed),
		IsStaff:      superuser,
		IsSuperuser:  superuser,
		IsActive:     true,
	})
	if err != nil {
		return types.User{}, s.mapCreateError(err, username)
	}

	s.logger.Info("user created",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Bool("superuser", superuser),
	)
	return user, nil
}

func (s *AccountService) mapCreateError(err error, username string) error {
	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict) && conflict.Field == store.ConflictEmail:
		return ErrDuplicateEmail
	case errors.As(err, &conflict) && conflict.Field == store.ConflictUsername:
		return ErrDuplicateUsername
	case errors.Is(err, store.ErrInvalidRecord):
		return ErrInvalidRecord
	default:
		logging.Error(s.logger, "failed to create user", err, zap.String("username", username))
		return err
	}
}

// Login checks credentials and issues a token pair. Unknown email, inactive
// account and wrong password are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	pair, err := s.login(ctx, email, password)
	metrics.ObserveAuth("login", err, isClientError)
	return pair, err
}

func (s *AccountService) login(ctx context.Context, email, password string) (TokenPair, error) {
	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return TokenPair{}, ErrInvalidCredentials
		}
		logging.Error(s.logger, "failed to load user for login", err)
		return TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return TokenPair{}, ErrInvalidCredentials
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		logging.Error(s.logger, "failed to record last login", err, zap.Int64("user_id", user.ID))
		return TokenPair{}, err
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		logging.Error(s.logger, "failed to issue tokens", err, zap.Int64("user_id", user.ID))
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *AccountService) Refresh(ctx context.Context, refresh string) (string, error) {
	if strings.TrimSpace(refresh) == "" {
		metrics.ObserveAuth("refresh", ErrMissingToken, isClientError)
		return "", ErrMissingToken
	}
	access, err := s.tokens.Refresh(ctx, refresh)
	if err != nil && KindOf(err) == KindInternal {
		logging.Error(s.logger, "failed to refresh token", err)
	}
	metrics.ObserveAuth("refresh", err, isClientError)
	return access, err
}

// Logout revokes a refresh token owned by the authenticated user.
// Revoking the same token twice succeeds.
func (s *AccountService) Logout(ctx context.Context, userID int64, refresh string) error {
	err := s.logout(ctx, userID, refresh)
	metrics.ObserveAuth("logout", err, isClientError)
	return err
}

func (s *AccountService) logout(ctx context.Context, userID int64, refresh string) error {
	if strings.TrimSpace(refresh) == "" {
		return ErrMissingToken
	}

	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.UserID != userID {
		s.logger.Warn("refresh token subject mismatch on logout",
			zap.Int64("user_id", userID),
			zap.Int64("token_user_id", claims.UserID),
		)
		return ErrInvalidToken
	}

	if err := s.tokens.revokeClaims(ctx, claims); err != nil {
		if !errors.Is(err, ErrRevocationUnsupported) {
			logging.Error(s.logger, "failed to revoke refresh token", err, zap.Int64("user_id", userID))
		}
		return err
	}
	return nil
}

func isClientError(err error) bool {
	return KindOf(err) != KindInternal
}
