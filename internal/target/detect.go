// internal/target/detect.go
package target

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
)

// Framework describes what kind of application a checkout contains and how
// to put it in a container. When the checkout ships its own Dockerfile,
// HasDockerfile is true and Dockerfile is empty; otherwise Dockerfile holds
// the synthesized template, or is empty for frameworks that cannot be
// containerized automatically (generic python, vue dev servers).
type Framework struct {
	Name          string
	Port          int
	HasDockerfile bool
	Dockerfile    string
}

// Containerizable reports whether an image can be built for the framework.
func (f Framework) Containerizable() bool {
	return f.HasDockerfile || f.Dockerfile != ""
}

// exposeRe pulls the first EXPOSE directive out of an existing Dockerfile.
var exposeRe = regexp.MustCompile(`(?im)^\s*EXPOSE\s+(\d+)`)

// DetectFramework inspects a checkout by file signatures, in fixed order:
// an existing Dockerfile wins, then Python projects, Node projects, static
// sites, and PHP. Returns false when nothing recognizable is present.
func DetectFramework(dir string) (Framework, bool) {
	if hasFile(dir, "Dockerfile") {
		return Framework{
			Name:          "docker",
			Port:          exposedPort(filepath.Join(dir, "Dockerfile")),
			HasDockerfile: true,
		}, true
	}

	if hasFile(dir, "requirements.txt") || hasFile(dir, "pyproject.toml") {
		switch {
		case hasFile(dir, "manage.py"):
			return Framework{Name: "django", Port: 8000, Dockerfile: djangoDockerfile}, true
		case hasFile(dir, "app.py"), hasFile(dir, "wsgi.py"):
			return Framework{Name: "flask", Port: 5000, Dockerfile: flaskDockerfile}, true
		default:
			return Framework{Name: "python", Port: 8000}, true
		}
	}

	if hasFile(dir, "package.json") {
		return nodeFramework(dir), true
	}

	if hasFile(dir, "index.html") {
		return Framework{Name: "static", Port: 8080, Dockerfile: staticDockerfile}, true
	}

	if hasFile(dir, "index.php") || hasFile(dir, "composer.json") {
		return Framework{Name: "php", Port: 80, Dockerfile: phpDockerfile}, true
	}

	return Framework{}, false
}

// nodeFramework narrows a package.json project by its lifecycle scripts.
// An unparseable manifest still counts as a generic Node project.
func nodeFramework(dir string) Framework {
	var manifest struct {
		Scripts map[string]string `json:"scripts"`
	}
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err == nil {
		_ = json.Unmarshal(data, &manifest)
	}

	if strings.Contains(manifest.Scripts["dev"], "next") {
		return Framework{Name: "nextjs", Port: 3000, Dockerfile: nodeDockerfile}
	}
	if strings.Contains(manifest.Scripts["start"], "react-scripts") {
		return Framework{Name: "react", Port: 3000, Dockerfile: nodeDockerfile}
	}
	if strings.Contains(manifest.Scripts["serve"], "vue-cli-service") {
		return Framework{Name: "vue", Port: 8080}
	}
	return Framework{Name: "nodejs", Port: 3000, Dockerfile: nodeDockerfile}
}

func exposedPort(dockerfilePath string) int {
	data, err := os.ReadFile(dockerfilePath)
	if err != nil {
		return 8080
	}
	if m := exposeRe.FindSubmatch(data); m != nil {
		if port, err := strconv.Atoi(string(m[1])); err == nil {
			return port
		}
	}
	return 8080
}

func hasFile(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}

// -- Dockerfile Templates --

const flaskDockerfile = `FROM python:3.11-slim
WORKDIR /app
COPY requirements.txt .
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
ENV FLASK_APP=app.py
EXPOSE 5000
CMD ["flask", "run", "--host=0.0.0.0"]
`

const djangoDockerfile = `FROM python:3.11-slim
WORKDIR /app
COPY requirements.txt .
RUN pip install --no-cache-dir -r requirements.txt
COPY . .
RUN python manage.py migrate --no-input
EXPOSE 8000
CMD ["python", "manage.py", "runserver", "0.0.0.0:8000"]
`

const nodeDockerfile = `FROM node:18-alpine
WORKDIR /app
COPY package*.json ./
RUN npm install
COPY . .
RUN npm run build || true
EXPOSE 3000
CMD ["npm", "start"]
`

const staticDockerfile = `FROM nginx:alpine
COPY . /usr/share/nginx/html
EXPOSE 8080
CMD ["nginx", "-g", "daemon off;"]
`

const phpDockerfile = `FROM php:8.1-apache
COPY . /var/www/html/
EXPOSE 80
CMD ["apache2-foreground"]
`
