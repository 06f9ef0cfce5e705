package llm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smartfolder/smartfolder/internal/state"
)

// APIKeyEnv is the primary credential source.
const APIKeyEnv = "AI_GATEWAY_API_KEY"

// tokenFileName is the fallback credential file inside the state home, so
// SMARTFOLDER_HOME relocates it together with the rest of the state.
const tokenFileName = "token"

// ErrNoCredentials means neither the environment variable nor the token file
// yielded an API key.
var ErrNoCredentials = errors.New("no gateway credentials: set " + APIKeyEnv + " or write a token file in the state home")

// ResolveAPIKey returns the gateway API key from AI_GATEWAY_API_KEY, falling
// back to the first line of the token file under the state home
// (SMARTFOLDER_HOME, or ~/.smartfolder when unset).
func ResolveAPIKey() (string, error) {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		return key, nil
	}

	store, err := state.NewStore()
	if err != nil {
		return "", fmt.Errorf("resolving state home: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(store.Home(), tokenFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredentials
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	key, _, _ := strings.Cut(string(data), "\n")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNoCredentials
	}
	return key, nil
}
