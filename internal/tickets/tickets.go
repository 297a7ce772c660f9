// Package tickets loads normalized ticket JSON files.
package tickets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"triagebot/internal/domain"
)

// File is one ticket JSON on disk. Key is the file stem, which the upstream
// normalizer names after the ticket key.
type File struct {
	Key  string
	Path string
}

func Load(path string) (domain.Ticket, error) {
	var t domain.Ticket
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse ticket %s: %w", path, err)
	}
	return t, nil
}

// List returns every *.json file in dir, sorted by file name.
func List(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		files = append(files, File{
			Key:  strings.TrimSuffix(name, ".json"),
			Path: filepath.Join(dir, name),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// LoadKeys loads the tickets in dir whose key is in keys. Unreadable files
// are returned in the error map rather than aborting the load.
func LoadKeys(dir string, keys map[string]bool) (map[string]domain.Ticket, map[string]error) {
	out := make(map[string]domain.Ticket)
	failed := make(map[string]error)
	files, err := List(dir)
	if err != nil {
		failed[dir] = err
		return out, failed
	}
	for _, f := range files {
		if !keys[f.Key] {
			continue
		}
		t, err := Load(f.Path)
		if err != nil {
			failed[f.Key] = err
			continue
		}
		out[f.Key] = t
	}
	return out, failed
}

// LatestDir picks the lexically greatest subdirectory of root. Normalized
// ticket folders are named by date (YYYY-MM-DD), so this is the newest.
func LatestDir(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("no normalized-tickets directory found at %s: %w", root, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no date folders found under %s", root)
	}
	sort.Strings(dirs)
	return filepath.Join(root, dirs[len(dirs)-1]), nil
}

// Find looks for key.json in the date folders under root, preferring the
// newest folder.
func Find(root, key string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*", key+".json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("ticket %s not found under %s", key, root)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
