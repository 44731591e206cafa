// Package analyzer inspects a project directory so `easydeploy init` can
// pick a runtime and port.
package analyzer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxDepth limits how far below the project root files are counted.
const maxDepth = 3

var ignoredDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
}

// Key files decide the language outright.
var keyFiles = map[string]Language{
	"go.mod":           LanguageGo,
	"package.json":     LanguageNodeJS,
	"requirements.txt": LanguagePython,
	"pyproject.toml":   LanguagePython,
	"pipfile":          LanguagePython,
	"pom.xml":          LanguageJava,
	"build.gradle":     LanguageJava,
	"build.gradle.kts": LanguageJava,
	"gemfile":          LanguageRuby,
}

var extensions = map[string]Language{
	".go":   LanguageGo,
	".js":   LanguageNodeJS,
	".ts":   LanguageNodeJS,
	".mjs":  LanguageNodeJS,
	".py":   LanguagePython,
	".java": LanguageJava,
	".kt":   LanguageJava,
	".rb":   LanguageRuby,
}

// Analyzer detects the language, framework and port of a project.
type Analyzer struct {
	logger zerolog.Logger
}

// New creates an analyzer.
func New() *Analyzer {
	return &Analyzer{logger: log.With().Str("component", "analyzer").Logger()}
}

// Analyze inspects dir.
func (a *Analyzer) Analyze(dir string) (Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read project directory: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("%s is not a directory", dir)
	}

	files, err := scan(dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to scan project directory: %w", err)
	}

	res := Result{Language: detectLanguage(files), Framework: FrameworkUnknown}
	res.Framework = detectFramework(dir, res.Language)
	res.Port = frameworkPorts[res.Framework]
	if res.Port == 0 {
		res.Port = languagePorts[res.Language]
	}

	for _, f := range files {
		if f.depth != 0 {
			continue
		}
		name := strings.ToLower(f.name)
		if name == "dockerfile" {
			res.HasDockerfile = true
		}
		if name == "index.html" && res.Language == LanguageUnknown {
			res.Static = true
		}
	}
	if port := exposedPort(dir); res.HasDockerfile && port > 0 {
		res.Port = port
	}

	a.logger.Debug().
		Str("language", string(res.Language)).
		Str("framework", string(res.Framework)).
		Int("port", res.Port).
		Bool("has_dockerfile", res.HasDockerfile).
		Msg("Project analyzed")
	return res, nil
}

type file struct {
	name  string
	ext   string
	depth int
}

func scan(root string) ([]file, error) {
	var files []file
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(rel, string(filepath.Separator))

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || ignoredDirs[d.Name()] || depth+1 >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, file{
			name:  d.Name(),
			ext:   strings.ToLower(filepath.Ext(d.Name())),
			depth: depth,
		})
		return nil
	})
	return files, err
}

func detectLanguage(files []file) Language {
	for _, f := range files {
		if lang, ok := keyFiles[strings.ToLower(f.name)]; ok && f.depth == 0 {
			return lang
		}
	}

	counts := make(map[Language]int)
	best, bestCount := LanguageUnknown, 0
	for _, f := range files {
		lang, ok := extensions[f.ext]
		if !ok {
			continue
		}
		counts[lang]++
		if counts[lang] > bestCount {
			best, bestCount = lang, counts[lang]
		}
	}
	return best
}
