package analyzer

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Dependency names that identify a framework, checked in order.
var (
	goFrameworks = []struct {
		module    string
		framework Framework
	}{
		{"github.com/gin-gonic/gin", FrameworkGin},
		{"github.com/labstack/echo", FrameworkEcho},
		{"github.com/go-chi/chi", FrameworkChi},
		{"github.com/gofiber/fiber", FrameworkFiber},
	}
	nodeFrameworks = []struct {
		pkg       string
		framework Framework
	}{
		{"next", FrameworkNextJS},
		{"@nestjs/core", FrameworkNestJS},
		{"fastify", FrameworkFastify},
		{"express", FrameworkExpress},
	}
	pythonFrameworks = []struct {
		pkg       string
		framework Framework
	}{
		{"django", FrameworkDjango},
		{"fastapi", FrameworkFastAPI},
		{"flask", FrameworkFlask},
	}
)

func detectFramework(dir string, lang Language) Framework {
	switch lang {
	case LanguageGo:
		data := readFile(dir, "go.mod")
		for _, f := range goFrameworks {
			if strings.Contains(data, f.module) {
				return f.framework
			}
		}
	case LanguageNodeJS:
		var pkg struct {
			Dependencies map[string]string `json:"dependencies"`
		}
		if err := json.Unmarshal([]byte(readFile(dir, "package.json")), &pkg); err != nil {
			return FrameworkUnknown
		}
		for _, f := range nodeFrameworks {
			if _, ok := pkg.Dependencies[f.pkg]; ok {
				return f.framework
			}
		}
	case LanguagePython:
		data := strings.ToLower(readFile(dir, "requirements.txt") + "\n" + readFile(dir, "pyproject.toml"))
		for _, f := range pythonFrameworks {
			if strings.Contains(data, f.pkg) {
				return f.framework
			}
		}
	case LanguageJava:
		data := readFile(dir, "pom.xml") + readFile(dir, "build.gradle") + readFile(dir, "build.gradle.kts")
		if strings.Contains(data, "spring-boot") {
			return FrameworkSpringBoot
		}
	case LanguageRuby:
		if strings.Contains(readFile(dir, "Gemfile"), "rails") {
			return FrameworkRails
		}
	}
	return FrameworkUnknown
}

// exposedPort returns the first EXPOSE port in dir/Dockerfile, or 0.
func exposedPort(dir string) int {
	f, err := os.Open(filepath.Join(dir, "Dockerfile"))
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.EqualFold(fields[0], "EXPOSE") {
			continue
		}
		port, _, _ := strings.Cut(fields[1], "/")
		if n, err := strconv.Atoi(port); err == nil && n > 0 && n <= 65535 {
			return n
		}
	}
	return 0
}

func readFile(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return string(data)
}
