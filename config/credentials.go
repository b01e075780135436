package config

import (
	"os"
	"sync"
)

// Credentials holds the secrets a provider needs to initialize.
type Credentials struct {
	APIKey  string
	Project string // W&B only
}

// CredentialStore keeps provider credentials in memory. Nothing is written
// to disk.
type CredentialStore struct {
	mu          sync.RWMutex
	credentials map[string]Credentials // providerID → credentials
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		credentials: make(map[string]Credentials),
	}
}

// CredentialsFromEnv reads ANTHROPIC_API_KEY, OPENAI_API_KEY, WANDB_API_KEY
// and WANDB_PROJECT.
func CredentialsFromEnv() *CredentialStore {
	store := NewCredentialStore()
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		store.Set(ProviderAnthropic, Credentials{APIKey: key})
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		store.Set(ProviderOpenAI, Credentials{APIKey: key})
	}
	if key := os.Getenv("WANDB_API_KEY"); key != "" {
		store.Set(ProviderWandb, Credentials{APIKey: key, Project: os.Getenv("WANDB_PROJECT")})
	}
	return store
}

func (c *CredentialStore) Get(providerID string) (Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	creds, ok := c.credentials[providerID]
	return creds, ok
}

func (c *CredentialStore) Set(providerID string, creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials[providerID] = creds
}

func (c *CredentialStore) Has(providerID string) bool {
	creds, ok := c.Get(providerID)
	return ok && creds.APIKey != ""
}
