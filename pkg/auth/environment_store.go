package auth

import (
	"os"
	"time"
)

// TokenEnvVar holds a bearer token for the default profile
const TokenEnvVar = "TWARCHIVE_BEARER_TOKEN"

// EnvironmentStore is a read-only CredentialStore backed by TokenEnvVar
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Name() string { return "environment" }

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment token for the default profile
func (e *EnvironmentStore) Retrieve(profile string) (*Credential, error) {
	token := os.Getenv(TokenEnvVar)
	if token == "" || (profile != "" && profile != DefaultProfile) {
		return nil, ErrCredentialsNotFound
	}

	return &Credential{
		Profile:      DefaultProfile,
		BearerToken:  token,
		LastModified: time.Time{},
	}, nil
}

// List returns the environment credential when the variable is set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve(DefaultProfile)
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(profile string) error {
	return ErrStoreUnavailable
}
