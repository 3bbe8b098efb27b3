package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCheckout(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestDetectFramework(t *testing.T) {
	testCases := []struct {
		name           string
		files          map[string]string
		wantName       string
		wantPort       int
		wantOwnDocker  bool
		containerizable bool
	}{
		{
			name:           "ExistingDockerfileWithExpose",
			files:          map[string]string{"Dockerfile": "FROM alpine\nEXPOSE 9090\nCMD [\"./run\"]\n"},
			wantName:       "docker",
			wantPort:       9090,
			wantOwnDocker:  true,
			containerizable: true,
		},
		{
			name:           "ExistingDockerfileWithoutExpose",
			files:          map[string]string{"Dockerfile": "FROM alpine\nCMD [\"./run\"]\n"},
			wantName:       "docker",
			wantPort:       8080,
			wantOwnDocker:  true,
			containerizable: true,
		},
		{
			name:           "Django",
			files:          map[string]string{"requirements.txt": "django\n", "manage.py": "#!/usr/bin/env python\n"},
			wantName:       "django",
			wantPort:       8000,
			containerizable: true,
		},
		{
			name:           "FlaskViaAppPy",
			files:          map[string]string{"pyproject.toml": "[project]\n", "app.py": "from flask import Flask\n"},
			wantName:       "flask",
			wantPort:       5000,
			containerizable: true,
		},
		{
			name:           "FlaskViaWSGI",
			files:          map[string]string{"requirements.txt": "flask\n", "wsgi.py": "app = None\n"},
			wantName:       "flask",
			wantPort:       5000,
			containerizable: true,
		},
		{
			name:     "GenericPythonHasNoTemplate",
			files:    map[string]string{"requirements.txt": "httpx\n"},
			wantName: "python",
			wantPort: 8000,
		},
		{
			name:           "NextJS",
			files:          map[string]string{"package.json": `{"scripts":{"dev":"next dev","start":"next start"}}`},
			wantName:       "nextjs",
			wantPort:       3000,
			containerizable: true,
		},
		{
			name:           "React",
			files:          map[string]string{"package.json": `{"scripts":{"start":"react-scripts start"}}`},
			wantName:       "react",
			wantPort:       3000,
			containerizable: true,
		},
		{
			name:     "VueHasNoTemplate",
			files:    map[string]string{"package.json": `{"scripts":{"serve":"vue-cli-service serve"}}`},
			wantName: "vue",
			wantPort: 8080,
		},
		{
			name:           "PlainNode",
			files:          map[string]string{"package.json": `{"scripts":{"start":"node server.js"}}`},
			wantName:       "nodejs",
			wantPort:       3000,
			containerizable: true,
		},
		{
			name:           "BrokenPackageJSONStillNode",
			files:          map[string]string{"package.json": `{not json`},
			wantName:       "nodejs",
			wantPort:       3000,
			containerizable: true,
		},
		{
			name:           "StaticSite",
			files:          map[string]string{"index.html": "<html></html>"},
			wantName:       "static",
			wantPort:       8080,
			containerizable: true,
		},
		{
			name:           "PHPViaComposer",
			files:          map[string]string{"composer.json": `{}`},
			wantName:       "php",
			wantPort:       80,
			containerizable: true,
		},
		{
			name:           "DockerfileBeatsEverything",
			files:          map[string]string{"Dockerfile": "FROM alpine\nEXPOSE 4000\n", "package.json": `{}`, "index.html": ""},
			wantName:       "docker",
			wantPort:       4000,
			wantOwnDocker:  true,
			containerizable: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := seedCheckout(t, tc.files)

			fw, ok := DetectFramework(dir)
			require.True(t, ok)

			assert.Equal(t, tc.wantName, fw.Name)
			assert.Equal(t, tc.wantPort, fw.Port)
			assert.Equal(t, tc.wantOwnDocker, fw.HasDockerfile)
			assert.Equal(t, tc.containerizable, fw.Containerizable())
			if tc.containerizable && !tc.wantOwnDocker {
				assert.Contains(t, fw.Dockerfile, "EXPOSE", "synthesized templates must expose the app port")
			}
		})
	}
}

func TestDetectFramework_NothingRecognizable(t *testing.T) {
	dir := seedCheckout(t, map[string]string{"README.md": "# hello"})

	_, ok := DetectFramework(dir)
	assert.False(t, ok)
}
