package analyzer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedLanguage is returned when no Dockerfile template exists for
// the detected language.
var ErrUnsupportedLanguage = errors.New("no Dockerfile template for this project")

// ErrDockerfileExists is returned by WriteDockerfile when the project
// already has one.
var ErrDockerfileExists = errors.New("Dockerfile already exists")

// Multi-stage templates; %[1]d is the exposed port.
var dockerfileTemplates = map[Language]string{
	LanguageGo: `FROM golang:1.25-alpine AS build
WORKDIR /src
COPY go.mod go.sum* ./
RUN go mod download
COPY . .
RUN CGO_ENABLED=0 go build -o /out/app .

FROM gcr.io/distroless/static-debian12
COPY --from=build /out/app /app
EXPOSE %[1]d
ENTRYPOINT ["/app"]
`,
	LanguageNodeJS: `FROM node:22-alpine AS build
WORKDIR /app
COPY package*.json ./
RUN npm ci
COPY . .
RUN npm run build --if-present

FROM node:22-alpine
WORKDIR /app
ENV NODE_ENV=production PORT=%[1]d
COPY --from=build /app ./
EXPOSE %[1]d
CMD ["npm", "start"]
`,
	LanguagePython: `FROM python:3.12-slim
WORKDIR /app
ENV PYTHONUNBUFFERED=1 PORT=%[1]d
COPY requirements.txt* ./
RUN if [ -f requirements.txt ]; then pip install --no-cache-dir -r requirements.txt; fi
COPY . .
EXPOSE %[1]d
CMD ["python", "app.py"]
`,
	LanguageJava: `FROM maven:3.9-eclipse-temurin-21 AS build
WORKDIR /src
COPY . .
RUN mvn -q -DskipTests package

FROM eclipse-temurin:21-jre
COPY --from=build /src/target/*.jar /app.jar
EXPOSE %[1]d
ENTRYPOINT ["java", "-jar", "/app.jar"]
`,
	LanguageRuby: `FROM ruby:3.3-slim
WORKDIR /app
COPY Gemfile* ./
RUN bundle install
COPY . .
EXPOSE %[1]d
CMD ["bundle", "exec", "rails", "server", "-b", "0.0.0.0", "-p", "%[1]d"]
`,
}

var pythonCommands = map[Framework]string{
	FrameworkDjango:  `CMD ["python", "manage.py", "runserver", "0.0.0.0:%[1]d"]`,
	FrameworkFastAPI: `CMD ["uvicorn", "main:app", "--host", "0.0.0.0", "--port", "%[1]d"]`,
	FrameworkFlask:   `CMD ["flask", "run", "--host", "0.0.0.0", "--port", "%[1]d"]`,
}

// Dockerfile renders a Dockerfile for the analyzed project.
func Dockerfile(res Result) (string, error) {
	tmpl, ok := dockerfileTemplates[res.Language]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, res.Language)
	}
	if cmd, ok := pythonCommands[res.Framework]; ok {
		tmpl = strings.Replace(tmpl, `CMD ["python", "app.py"]`, cmd, 1)
	}

	port := res.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf(tmpl, port), nil
}

// WriteDockerfile renders a Dockerfile into dir and returns its path.
func WriteDockerfile(dir string, res Result) (string, error) {
	path := filepath.Join(dir, "Dockerfile")
	if _, err := os.Stat(path); err == nil {
		return path, ErrDockerfileExists
	}

	content, err := Dockerfile(res)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	return path, nil
}
