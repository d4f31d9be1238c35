package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cinequiz/apiserver/internal/logging"
	"github.com/cinequiz/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	codeTokenNotValid = "token_not_valid"

	msgLoginFieldsRequired = "Email and password are required."
	msgNoCredentials       = "Authentication credentials were not provided."
	msgBearerNotValid      = "Given token not valid for any token type"
	msgLogoutSuccess       = "Logout successful."
	msgSignupSuccess       = "User created successfully."
	msgSignupFailed        = "An error occurred during signup."
)

// AuthHandler serves signup, login, token refresh and logout.
type AuthHandler struct {
	account *services.AccountService
	tokens  *services.TokenService
	logger  *zap.Logger
}

func NewAuthHandler(account *services.AccountService, tokens *services.TokenService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		account: account,
		tokens:  tokens,
		logger:  logging.WithComponent(logger, "auth_handler"),
	}
}

// AuthRouter registers the account routes on the given router.
func AuthRouter(r chi.Router, account *services.AccountService, tokens *services.TokenService, logger *zap.Logger) {
	handler := NewAuthHandler(account, tokens, logger)

	r.Post("/token", handler.Login)
	r.Post("/token/refresh", handler.Refresh)
	r.With(RequireAuth(tokens)).Post("/logout", handler.Logout)
	r.Post("/signup", handler.Signup)
}

// RequireAuth validates the bearer access token and injects its subject
// into the request context.
func RequireAuth(tokens *services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, msgNoCredentials, "")
				return
			}

			userID, err := tokens.VerifyAccess(tokenString)
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, msgBearerNotValid, codeTokenNotValid)
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Login exchanges email and password for an access/refresh pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, "email", "password")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if strings.TrimSpace(fields["email"]) == "" || fields["password"] == "" {
		writeDetail(w, http.StatusBadRequest, msgLoginFieldsRequired, "")
		return
	}

	pair, err := h.account.Login(r.Context(), fields["email"], fields["password"])
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeDetail(w, http.StatusUnauthorized, services.ErrInvalidCredentials.Error(), "")
			return
		}
		h.logFailure(r, "login failed", err)
		writeDetail(w, http.StatusInternalServerError, "failed to authenticate", "")
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Refresh issues a new access token for a valid refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, "refresh")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	access, err := h.account.Refresh(r.Context(), fields["refresh"])
	if err != nil {
		switch services.KindOf(err) {
		case services.KindValidation:
			writeDetail(w, http.StatusBadRequest, err.Error(), "")
		case services.KindAuth:
			writeDetail(w, http.StatusUnauthorized, services.ErrInvalidToken.Error(), codeTokenNotValid)
		default:
			h.logFailure(r, "refresh failed", err)
			writeDetail(w, http.StatusInternalServerError, "failed to refresh token", "")
		}
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{Access: access})
}

// Logout blacklists the caller's refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, msgNoCredentials, "")
		return
	}

	fields, err := readFields(w, r, "refresh")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.account.Logout(r.Context(), userID, fields["refresh"]); err != nil {
		switch services.KindOf(err) {
		case services.KindValidation, services.KindAuth:
			writeError(w, http.StatusBadRequest, err.Error())
		case services.KindUnsupported:
			writeError(w, http.StatusNotImplemented, err.Error())
		default:
			h.logFailure(r, "logout failed", err)
			writeError(w, http.StatusInternalServerError, "failed to log out")
		}
		return
	}

	writeDetail(w, http.StatusOK, msgLogoutSuccess, "")
}

// Signup registers a new account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r, "username", "email", "password", "confirm_password", "first_name", "last_name")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err = h.account.Signup(r.Context(), services.SignupInput{
		Username:        fields["username"],
		Email:           fields["email"],
		Password:        fields["password"],
		ConfirmPassword: fields["confirm_password"],
		FirstName:       fields["first_name"],
		LastName:        fields["last_name"],
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, h.signupError(r, err))
		return
	}

	writeDetail(w, http.StatusCreated, msgSignupSuccess, "")
}

// signupError shapes the "error" value of a failed signup: a list of
// password violations, a field keyed object for duplicates, or a message.
func (h *AuthHandler) signupError(r *http.Request, err error) any {
	var weak *services.WeakPasswordError
	switch {
	case errors.As(err, &weak):
		return weak.Violations
	case errors.Is(err, services.ErrDuplicateEmail):
		return map[string]string{"email": err.Error()}
	case errors.Is(err, services.ErrDuplicateUsername):
		return map[string]string{"username": err.Error()}
	case services.KindOf(err) == services.KindValidation:
		return err.Error()
	default:
		h.logFailure(r, "signup failed", err)
		return msgSignupFailed
	}
}

func (h *AuthHandler) logFailure(r *http.Request, msg string, err error) {
	logging.Error(logging.WithRequestID(h.logger, middleware.GetReqID(r.Context())), msg, err)
}

type RefreshResponse struct {
	Access string `json:"access"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
