package accountstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var labelSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// SaveToFile persists a as one JSON file under dir, named
// "<provider>-<label>.json", matching the teacher's per-credential file
// convention (internal/cmd/grok_login.go's SaveTokenToFile). Used by the
// `login` CLI subcommand when no DATABASE_URL backs a PostgresRepository, so
// a later `serve` invocation can pick the account back up via LoadDir.
func SaveToFile(dir string, a *Account) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("accountstore: creating auth dir: %w", err)
	}
	label := a.Email
	if label == "" {
		label = a.ID
	}
	filename := fmt.Sprintf("%s-%s.json", a.Provider, sanitizeLabel(label))
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("accountstore: encoding account: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("accountstore: writing %s: %w", path, err)
	}
	return path, nil
}

// LoadDir reads every *.json file in dir as an Account, skipping files that
// don't parse (logged by the caller, not here, to keep this package
// logging-free).
func LoadDir(dir string) ([]*Account, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("accountstore: reading auth dir: %w", err)
	}

	var accounts []*Account
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var a Account
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		accounts = append(accounts, &a)
	}
	return accounts, nil
}

func sanitizeLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "default"
	}
	clean := labelSanitizer.ReplaceAllString(raw, "_")
	if clean == "" {
		return "default"
	}
	return clean
}
