package analyzer

// Language is the primary language of a project directory.
type Language string

const (
	LanguageGo      Language = "go"
	LanguageNodeJS  Language = "nodejs"
	LanguagePython  Language = "python"
	LanguageJava    Language = "java"
	LanguageRuby    Language = "ruby"
	LanguageUnknown Language = "unknown"
)

// Framework is the web framework a project depends on, if any.
type Framework string

const (
	FrameworkGin        Framework = "gin"
	FrameworkEcho       Framework = "echo"
	FrameworkChi        Framework = "chi"
	FrameworkFiber      Framework = "fiber"
	FrameworkExpress    Framework = "express"
	FrameworkNestJS     Framework = "nestjs"
	FrameworkNextJS     Framework = "nextjs"
	FrameworkFastify    Framework = "fastify"
	FrameworkFlask      Framework = "flask"
	FrameworkDjango     Framework = "django"
	FrameworkFastAPI    Framework = "fastapi"
	FrameworkSpringBoot Framework = "springboot"
	FrameworkRails      Framework = "rails"
	FrameworkUnknown    Framework = "unknown"
)

// Result describes what Analyze found in a project directory.
type Result struct {
	Language      Language
	Framework     Framework
	Port          int
	HasDockerfile bool
	// Static is set for a directory of plain web assets.
	Static bool
}

// Runtime returns the descriptor runtime that fits the project.
func (r Result) Runtime() string {
	if r.Static && !r.HasDockerfile {
		return "static"
	}
	return "docker"
}

// Detected reports whether anything useful was recognised.
func (r Result) Detected() bool {
	return r.Language != LanguageUnknown || r.HasDockerfile || r.Static
}

// Port defaults by framework, then by language.
var (
	frameworkPorts = map[Framework]int{
		FrameworkExpress:    3000,
		FrameworkNestJS:     3000,
		FrameworkNextJS:     3000,
		FrameworkFastify:    3000,
		FrameworkFlask:      5000,
		FrameworkDjango:     8000,
		FrameworkFastAPI:    8000,
		FrameworkRails:      3000,
		FrameworkSpringBoot: 8080,
	}
	languagePorts = map[Language]int{
		LanguageGo:     8080,
		LanguageNodeJS: 3000,
		LanguagePython: 5000,
		LanguageJava:   8080,
		LanguageRuby:   3000,
	}
)
