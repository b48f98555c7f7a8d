package services

import (
	"database/sql"
	"errors"

	"github.com/kimhsiao/setforge/backend/internal/crypto"
	"github.com/kimhsiao/setforge/backend/internal/db"
	apperrors "github.com/kimhsiao/setforge/backend/internal/errors"
)

// apiKeyDocKey is the documents row holding the encrypted remote API key.
const apiKeyDocKey = "remote_api_key"

// CredentialService stores the remote API key encrypted at rest, bound to a
// device install id supplied by the platform layer.
type CredentialService struct {
	repo     *db.Repository
	deviceID string
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(repo *db.Repository, deviceID string) *CredentialService {
	return &CredentialService{repo: repo, deviceID: deviceID}
}

// SetAPIKey encrypts and persists the remote API key.
func (s *CredentialService) SetAPIKey(apiKey string) error {
	if apiKey == "" {
		return s.ClearAPIKey()
	}
	encrypted, err := crypto.EncryptAPIKey(apiKey, s.deviceID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encrypt API key", err)
	}
	if err := s.repo.PutDocument(apiKeyDocKey, encrypted); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to store API key", err)
	}
	return nil
}

// GetAPIKey loads and decrypts the stored API key. A missing row returns an
// empty key, not an error.
func (s *CredentialService) GetAPIKey() (string, error) {
	doc, err := s.repo.GetDocument(apiKeyDocKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "failed to read API key", err)
	}

	apiKey, err := crypto.DecryptAPIKey(doc.Value, s.deviceID)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "failed to decrypt API key", err)
	}
	return apiKey, nil
}

// ClearAPIKey removes the stored API key.
func (s *CredentialService) ClearAPIKey() error {
	if err := s.repo.DeleteDocument(apiKeyDocKey); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to clear API key", err)
	}
	return nil
}
