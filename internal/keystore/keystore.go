package keystore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"clip-flow/internal/domain"
)

// serviceName identifies this app's entries in the OS keychain.
const serviceName = "clip-flow"

// ErrUnknownProvider is returned for providers without keychain entries.
var ErrUnknownProvider = errors.New("unknown api key provider")

// Keystore stores cloud provider API keys in the OS keychain.
type Keystore struct {
	set    func(service, user, password string) error
	get    func(service, user string) (string, error)
	delete func(service, user string) error
}

// New builds a keystore backed by the system keychain.
func New() *Keystore {
	return &Keystore{
		set:    keyring.Set,
		get:    keyring.Get,
		delete: keyring.Delete,
	}
}

// NewForTests creates a keystore with injectable keychain operations.
func NewForTests(
	set func(service, user, password string) error,
	get func(service, user string) (string, error),
	del func(service, user string) error,
) *Keystore {
	return &Keystore{set: set, get: get, delete: del}
}

// entryName maps a provider to its keychain entry.
func entryName(provider domain.Provider) (string, error) {
	switch provider {
	case domain.ProviderOpenAI:
		return "openai_api_key", nil
	case domain.ProviderClaude:
		return "claude_api_key", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// Set stores an API key for the provider.
func (k *Keystore) Set(provider domain.Provider, apiKey string) error {
	entry, err := entryName(provider)
	if err != nil {
		return err
	}
	if strings.TrimSpace(apiKey) == "" {
		return fmt.Errorf("api key for %s is empty", provider)
	}
	if err := k.set(serviceName, entry, apiKey); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	return nil
}

// Get returns the provider's API key, or empty string when none is stored.
func (k *Keystore) Get(provider domain.Provider) (string, error) {
	entry, err := entryName(provider)
	if err != nil {
		return "", err
	}

	key, err := k.get(serviceName, entry)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("retrieve api key: %w", err)
	}
	return key, nil
}

// Delete removes the provider's API key. Deleting a missing key is a no-op.
func (k *Keystore) Delete(provider domain.Provider) error {
	entry, err := entryName(provider)
	if err != nil {
		return err
	}

	if err := k.delete(serviceName, entry); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

// Has reports whether a key is stored for the provider.
func (k *Keystore) Has(provider domain.Provider) (bool, error) {
	key, err := k.Get(provider)
	if err != nil {
		return false, err
	}
	return key != "", nil
}

// Status reports which cloud provider keys are configured.
func (k *Keystore) Status() (domain.APIKeyStatus, error) {
	openai, err := k.Has(domain.ProviderOpenAI)
	if err != nil {
		return domain.APIKeyStatus{}, err
	}
	claude, err := k.Has(domain.ProviderClaude)
	if err != nil {
		return domain.APIKeyStatus{}, err
	}
	return domain.APIKeyStatus{OpenAI: openai, Claude: claude}, nil
}

// Masked returns the stored key with only the first and last four characters
// visible, for settings display. Empty when no key is stored.
func (k *Keystore) Masked(provider domain.Provider) (string, error) {
	key, err := k.Get(provider)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", nil
	}
	if len(key) <= 4 {
		return "****", nil
	}
	return key[:4] + "..." + key[len(key)-4:], nil
}
