package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const keychainService = "mockmate"

// ErrSecretNotFound is returned by Keychain.Get when no value is stored.
var ErrSecretNotFound = errors.New("secret not found")

// Keychain is a JSON secrets file at $XDG_DATA_HOME/mockmate/secrets.json,
// laid out as service -> account -> value and written with 0600 permissions.
type Keychain struct {
	path string
}

// NewKeychain returns the keychain at its default location.
func NewKeychain() *Keychain {
	return &Keychain{path: filepath.Join(dataDir(), "secrets.json")}
}

// NewKeychainAt returns a keychain backed by the file at path.
func NewKeychainAt(path string) *Keychain {
	return &Keychain{path: path}
}

func (k *Keychain) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(k.path)
	if os.IsNotExist(err) {
		return map[string]map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	if secrets == nil {
		secrets = map[string]map[string]string{}
	}
	return secrets, nil
}

func (k *Keychain) Get(service, account string) (string, error) {
	secrets, err := k.read()
	if err != nil {
		return "", err
	}
	val, ok := secrets[service][account]
	if !ok || val == "" {
		return "", ErrSecretNotFound
	}
	return val, nil
}

func (k *Keychain) Set(service, account, value string) error {
	secrets, err := k.read()
	if err != nil {
		return err
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(k.path, out, 0o600)
}

// GetAPIToken returns the bearer token guarding the local HTTP API,
// generating and storing a random one on first use.
func GetAPIToken(kc *Keychain) (string, error) {
	tok, err := kc.Get(keychainService, "api_token")
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := kc.Set(keychainService, "api_token", tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// SetLLMAPIKey stores the LLM provider key in the keychain.
func SetLLMAPIKey(kc *Keychain, key string) error {
	return kc.Set(keychainService, "llm_api_key", key)
}
