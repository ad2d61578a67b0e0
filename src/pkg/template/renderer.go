package template

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "template")

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// Renderer renders markdown summaries from the embedded or custom templates
type Renderer struct {
	funcs template.FuncMap
}

func NewRenderer() *Renderer {
	funcs := sprig.TxtFuncMap()
	funcs["signature"] = func() string { return ToolSignature }
	funcs["failedRows"] = func(rows []models.LedgerRow) int {
		n := 0
		for _, r := range rows {
			if !r.Passed() {
				n++
			}
		}
		return n
	}
	return &Renderer{funcs: funcs}
}

// RenderWithTemplates renders name with data. When templatesPath holds a file
// of that name it is used, otherwise the embedded default.
func (r *Renderer) RenderWithTemplates(templatesPath, name string, data any) (string, error) {
	src, err := r.load(templatesPath, name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Funcs(r.funcs).Parse(string(src))
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) load(templatesPath, name string) ([]byte, error) {
	if templatesPath != "" {
		path := filepath.Join(templatesPath, name)
		src, err := os.ReadFile(path) // #nosec G304
		if err == nil {
			logger.WithField("path", path).Debug("Using custom template")
			return src, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read template %s: %w", path, err)
		}
	}
	src, err := defaultTemplates.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("unknown template %s: %w", name, err)
	}
	return src, nil
}
