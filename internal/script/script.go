// Package script handles the policy script shown next to a run. The script
// is never executed; it only contributes a display signature.
package script

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/xxh3"
)

const signatureModulus = 99_999

//go:embed templates/jump_trainer.py
var DefaultTemplate string

// Signature maps a script to a stable number in [0, 99999).
func Signature(script string) int {
	return int(xxh3.HashString(script) % signatureModulus)
}

func LoadedMessage(signature int) string {
	return fmt.Sprintf("Loaded policy signature #%d.", signature)
}

// Load reads a script file, falling back to DefaultTemplate for an empty path.
func Load(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script %s: %w", path, err)
	}
	return string(data), nil
}
