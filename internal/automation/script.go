//go:build !no_automation

package automation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Script is one Lua automation loaded from the scripts directory.
type Script struct {
	ID     string // filename without extension
	Source string
}

// LoadScripts reads every *.lua file in dir. A missing directory is not an
// error; it just means no automations.
func LoadScripts(dir string) ([]Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("automation: read scripts dir: %w", err)
	}

	var scripts []Script
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("automation: read script %s: %w", entry.Name(), err)
		}
		scripts = append(scripts, Script{
			ID:     strings.TrimSuffix(entry.Name(), ".lua"),
			Source: string(data),
		})
	}
	return scripts, nil
}
