// Package storage encapsulates filesystem access for crew directories.
package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/kdkiss/CrewAI-Command-Center/internal/domain"
)

var moduleImportName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// NormalizeCrewID normalizes a crew identifier for safe filesystem and
// module usage. Hyphens and periods map to underscores.
func NormalizeCrewID(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", fmt.Errorf("crew ID cannot be empty")
	}

	normalized := strings.NewReplacer("-", "_", ".", "_").Replace(candidate)

	first := rune(normalized[0])
	if !(first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return "", fmt.Errorf("invalid crew ID %q: crew IDs must start with a letter or underscore", raw)
	}
	if !moduleImportName.MatchString(normalized) {
		return "", fmt.Errorf("invalid crew ID %q: crew IDs may only contain letters, numbers, hyphens, periods, or underscores", raw)
	}
	return normalized, nil
}

// Storage resolves crew directories under a single crews folder.
type Storage struct {
	crewsPath string
}

// New creates a Storage rooted at crewsPath, creating the folder if needed.
func New(crewsPath string) (*Storage, error) {
	if err := os.MkdirAll(crewsPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create crews folder: %w", err)
	}
	return &Storage{crewsPath: crewsPath}, nil
}

// Path returns the crews folder root.
func (s *Storage) Path() string {
	return s.crewsPath
}

// findExistingCrewDir locates the directory of a normalized crew id,
// tolerating directory names that normalize to the same id.
func (s *Storage) findExistingCrewDir(normalizedID string) string {
	candidate := filepath.Join(s.crewsPath, normalizedID)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate
	}

	entries, err := os.ReadDir(s.crewsPath)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if normalized, err := NormalizeCrewID(entry.Name()); err == nil && normalized == normalizedID {
			return filepath.Join(s.crewsPath, entry.Name())
		}
	}
	return ""
}

// ResolveCrewDir normalizes crewID and returns its directory.
func (s *Storage) ResolveCrewDir(crewID string) (string, string, error) {
	normalizedID, err := NormalizeCrewID(crewID)
	if err != nil {
		return "", "", err
	}
	crewDir := s.findExistingCrewDir(normalizedID)
	if crewDir == "" {
		return "", "", fmt.Errorf("crew %q does not exist", crewID)
	}
	return normalizedID, crewDir, nil
}

// ResolveExistingConfigDir resolves the crew root, package, and config
// directories of an existing crew. src/ must exist; src/<id>/ is preferred,
// otherwise src must contain exactly one package directory.
func (s *Storage) ResolveExistingConfigDir(crewID string) (crewDir, pkgDir, configDir string, err error) {
	normalizedID, crewDir, err := s.ResolveCrewDir(crewID)
	if err != nil {
		return "", "", "", err
	}

	srcDir := filepath.Join(crewDir, "src")
	if info, statErr := os.Stat(srcDir); statErr != nil || !info.IsDir() {
		return "", "", "", fmt.Errorf("invalid crew directory structure for %s: missing src directory", crewID)
	}

	preferred := filepath.Join(srcDir, normalizedID)
	if info, statErr := os.Stat(preferred); statErr == nil && info.IsDir() {
		pkgDir = preferred
	} else {
		dirs, listErr := packageDirs(srcDir)
		if listErr != nil || len(dirs) != 1 {
			return "", "", "", fmt.Errorf("invalid crew directory structure for %s: expected exactly one package directory in src", crewID)
		}
		pkgDir = dirs[0]
	}

	return crewDir, pkgDir, filepath.Join(pkgDir, "config"), nil
}

func packageDirs(srcDir string) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(srcDir, entry.Name()))
		}
	}
	return dirs, nil
}

// EnvFileValues reads crewDir/.env. A missing file yields an empty map.
func (s *Storage) EnvFileValues(crewDir string) (map[string]string, error) {
	envPath := filepath.Join(crewDir, ".env")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(envPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", envPath, err)
	}
	return values, nil
}

// ListCrews scans the crews folder and returns the summary of every valid
// crew, sorted by id. A crew is valid when src/ holds exactly one package
// directory containing main.py.
func (s *Storage) ListCrews(runningIDs map[string]bool) []domain.Crew {
	entries, err := os.ReadDir(s.crewsPath)
	if err != nil {
		log.Printf("storage: error listing crews folder: %v", err)
		return nil
	}

	var crews []domain.Crew
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		crew, ok := s.loadCrewInfo(filepath.Join(s.crewsPath, entry.Name()), entry.Name(), runningIDs)
		if ok {
			crews = append(crews, crew)
		}
	}
	sort.Slice(crews, func(i, j int) bool { return crews[i].ID < crews[j].ID })
	return crews
}

// LoadCrew returns the summary of one crew.
func (s *Storage) LoadCrew(crewID string, runningIDs map[string]bool) (domain.Crew, error) {
	normalizedID, crewDir, err := s.ResolveCrewDir(crewID)
	if err != nil {
		return domain.Crew{}, err
	}
	crew, ok := s.loadCrewInfo(crewDir, normalizedID, runningIDs)
	if !ok {
		return domain.Crew{}, fmt.Errorf("invalid crew directory structure for %s", crewID)
	}
	crew.ID = normalizedID
	return crew, nil
}

func (s *Storage) loadCrewInfo(crewDir, id string, runningIDs map[string]bool) (domain.Crew, bool) {
	srcDir := filepath.Join(crewDir, "src")
	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		return domain.Crew{}, false
	}

	dirs, err := packageDirs(srcDir)
	if err != nil || len(dirs) != 1 {
		return domain.Crew{}, false
	}
	pkgDir := dirs[0]

	if _, err := os.Stat(filepath.Join(pkgDir, "main.py")); err != nil {
		log.Printf("storage: missing main.py in %s", crewDir)
		return domain.Crew{}, false
	}

	status := domain.CrewStatusReady
	if runningIDs[id] {
		status = domain.CrewStatusRunning
	}
	return domain.Crew{
		ID:     id,
		Name:   s.crewName(filepath.Join(pkgDir, "config"), id),
		Status: status,
	}, true
}

// crewName reads the display name from config/crew.json, falling back to
// the crew id.
func (s *Storage) crewName(configDir, id string) string {
	raw, err := os.ReadFile(filepath.Join(configDir, "crew.json"))
	if err != nil {
		return id
	}
	var metadata struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		log.Printf("storage: invalid JSON in metadata file %s: %v", filepath.Join(configDir, "crew.json"), err)
		return id
	}
	if name := strings.TrimSpace(metadata.Name); name != "" {
		return name
	}
	return id
}
