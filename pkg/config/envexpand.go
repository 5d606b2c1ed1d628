package config

import (
	"bytes"
	"os"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go templates.
// Uses {{.VAR_NAME}} syntax so literal $ characters in the file survive
// untouched, which matters for SRQL filter values and password-like strings.
//
// Examples:
//   - base_url: "{{.BACKEND_URL}}" → value of BACKEND_URL
//   - listen_addr: ":{{.PORT}}" → ":8090" with PORT=8090
//
// Missing variables expand to empty string; validation catches required
// fields left empty. Malformed templates pass the original content through so
// the YAML parser can produce its own error.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		// Split only on first = to handle values with = in them
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}

	return buf.Bytes()
}
