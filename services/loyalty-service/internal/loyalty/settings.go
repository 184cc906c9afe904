package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/detailcrm/libs/auth"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/rules"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
)

func (s *Service) GetSettings(ctx context.Context, businessID string) (model.Settings, error) {
	return s.repo.GetSettings(ctx, s.repo.Reader(), businessID)
}

func (s *Service) UpdateSettings(ctx context.Context, in model.Settings) (model.Settings, error) {
	if strings.TrimSpace(in.BusinessID) == "" {
		return model.Settings{}, fmt.Errorf("%w: business_id is required", ErrInvalidArgument)
	}
	if err := rules.ValidateSettings(in); err != nil {
		return model.Settings{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	out, err := s.repo.UpsertSettings(ctx, s.repo.Reader(), in)
	if err != nil {
		return model.Settings{}, err
	}
	s.logger.Info("loyalty settings updated", "business_id", in.BusinessID, "enabled", in.Enabled)
	return out, nil
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	BusinessID  string    `json:"business_id"`
	Role        string    `json:"role"`
}

// IssueToken exchanges API client credentials for a signed access token.
func (s *Service) IssueToken(ctx context.Context, clientID, clientSecret string) (Token, error) {
	if s.signer == nil {
		return Token{}, errors.New("token signer not configured")
	}
	c, err := s.repo.GetClient(ctx, strings.TrimSpace(clientID))
	if errors.Is(err, storage.ErrNotFound) {
		return Token{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, err
	}
	if c.DisabledAt != nil {
		return Token{}, auth.ErrInvalidCredentials
	}
	if err := auth.VerifySecret(c.SecretHash, clientSecret); err != nil {
		return Token{}, auth.ErrInvalidCredentials
	}
	tok, exp, err := s.signer.Issue(c.ClientID, c.BusinessID, c.Role)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: tok, TokenType: "Bearer", ExpiresAt: exp, BusinessID: c.BusinessID, Role: c.Role}, nil
}

// CreateClient registers an API client and returns its one-time plaintext secret.
func (s *Service) CreateClient(ctx context.Context, businessID, role, name string) (clientID, secret string, err error) {
	if strings.TrimSpace(businessID) == "" {
		return "", "", fmt.Errorf("%w: business_id is required", ErrInvalidArgument)
	}
	if !auth.ValidRole(role) {
		return "", "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}
	secret, err = auth.GenerateSecret()
	if err != nil {
		return "", "", err
	}
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return "", "", err
	}
	clientID = "lc_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.repo.CreateClient(ctx, storage.APIClient{
		ClientID:   clientID,
		BusinessID: businessID,
		SecretHash: hash,
		Role:       role,
		Name:       name,
	}); err != nil {
		return "", "", err
	}
	return clientID, secret, nil
}
