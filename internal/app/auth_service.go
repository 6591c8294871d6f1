package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"transitchat/internal/ai"
	"transitchat/internal/model"
	"transitchat/internal/pkg/jwtutil"
	"transitchat/internal/repository"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// AuthService handles the Google OAuth code flow and issues the service's
// own bearer tokens. Users are upserted on every successful login; a stored
// Gemini key survives re-login untouched.
type AuthService struct {
	userRepo      *repository.UserRepository
	oauth         *oauth2.Config
	keyChecker    ai.KeyChecker
	jwtSecret     string
	jwtExpiration time.Duration
	logger        *zap.Logger
}

type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type AuthResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type googleProfile struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func NewAuthService(
	userRepo *repository.UserRepository,
	oauthCfg GoogleOAuthConfig,
	keyChecker ai.KeyChecker,
	jwtSecret string,
	jwtExpiration time.Duration,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		oauth: &oauth2.Config{
			ClientID:     oauthCfg.ClientID,
			ClientSecret: oauthCfg.ClientSecret,
			RedirectURL:  oauthCfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		keyChecker:    keyChecker,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		logger:        logger,
	}
}

// LoginURL returns the Google consent page URL for the given anti-forgery
// state.
func (s *AuthService) LoginURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// HandleCallback exchanges the authorization code, fetches the user profile
// and issues a bearer token.
func (s *AuthService) HandleCallback(ctx context.Context, code string) (*AuthResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidInput
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("oauth code exchange failed", zap.Error(err))
		return nil, ErrOAuthExchange
	}

	profile, err := s.fetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:   strings.ToLower(profile.Email),
		Name:    profile.Name,
		Picture: profile.Picture,
	}
	if err := s.userRepo.UpsertFromLogin(user); err != nil {
		return nil, err
	}

	signed, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.Email, user.Name)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("email", user.Email))
	return &AuthResult{Token: signed, User: user}, nil
}

func (s *AuthService) fetchProfile(ctx context.Context, token *oauth2.Token) (*googleProfile, error) {
	httpClient := s.oauth.Client(ctx, token)
	resp, err := httpClient.Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, string(raw))
	}

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode userinfo failed: %w", err)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("userinfo response missing email")
	}
	return &profile, nil
}

func (s *AuthService) GetUser(email string) (*model.User, error) {
	if email == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// SaveAPIKey validates the key against the Gemini API before storing it, so
// a broken key is rejected at save time rather than at the next chat turn.
func (s *AuthService) SaveAPIKey(ctx context.Context, email, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if email == "" || apiKey == "" {
		return ErrInvalidInput
	}
	if err := s.keyChecker.Check(ctx, apiKey); err != nil {
		s.logger.Warn("api key validation failed", zap.String("email", email), zap.Error(err))
		return ErrAPIKeyInvalid
	}
	return s.userRepo.SetAPIKey(email, apiKey)
}

func (s *AuthService) ClearAPIKey(email string) error {
	if email == "" {
		return ErrInvalidInput
	}
	return s.userRepo.SetAPIKey(email, "")
}
