package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gh-nvat/pipecheck/src/pkg/config"
	"github.com/gh-nvat/pipecheck/src/pkg/matrix"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/gh-nvat/pipecheck/src/pkg/template"
	"github.com/gh-nvat/pipecheck/src/pkg/trace"

	log "github.com/sirupsen/logrus"
)

var logger *log.Entry = log.New().WithFields(log.Fields{
	"package": "runner",
})

// RunnerBase loads the harness configuration and expands the test matrix.
// Mode specific runners embed it.
type RunnerBase struct {
	Context context.Context
	Options *Options

	Renderer *template.Renderer

	Config *models.HarnessConfig
	Cases  []models.TestCase
}

func NewRunnerBase(
	ctx context.Context,
	options *Options,
	renderer *template.Renderer,
) (*RunnerBase, error) {
	runner := &RunnerBase{
		Context:  ctx,
		Options:  options,
		Renderer: renderer,
	}
	return runner, nil
}

func (r *RunnerBase) Initialize() error {
	logger.Info("Initializing runner: starting...")

	if r.Renderer == nil {
		return fmt.Errorf("renderer is required")
	}

	_, span := trace.StartSpan(r.Context, "LoadConfig")
	cfg, err := config.Load(r.Options.ConfigPath)
	span.End()
	if err != nil {
		return fmt.Errorf("failed to load harness config: %w", err)
	}
	r.Config = cfg

	cases, err := matrix.Build(*cfg, matrix.Options{GPU: r.Options.GPU})
	if err != nil {
		return fmt.Errorf("failed to build test matrix: %w", err)
	}
	r.Cases = cases

	logger.WithField("config", cfg.Name).
		WithField("images", len(cfg.ImageIDs)).
		WithField("workflows", len(cfg.WorkflowNames)).
		Infof("Initialize runner: done, %d test cases.", len(cases))
	return nil
}

// Exporting a json file to the output directory if enabled
func (r *RunnerBase) outputJson(fileName string, data any) error {
	if !r.Options.EnableExportReport {
		logger.Info("OutputJson: option was disabled")
		return nil
	}
	logger.Info("OutputJson: starting...")

	if err := os.MkdirAll(r.Options.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return writeJson(filepath.Join(r.Options.OutputDir, fileName), data)
}

// Rendering a markdown template into filePath
func (r *RunnerBase) outputMarkdown(templateName, filePath string, data any) (string, error) {
	logger.Info("OutputMarkdown: starting...")

	renderedMarkdown, err := r.Renderer.RenderWithTemplates(r.Options.TemplatesPath, templateName, data)
	if err != nil {
		logger.WithField("error", err).Error("Failed to render markdown template")
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(renderedMarkdown), 0644); err != nil {
		logger.WithField("filePath", filePath).WithField("error", err).Error("Failed to write markdown report to file")
		return "", err
	}

	logger.WithField("filePath", filePath).Info("Written markdown report to file")
	return renderedMarkdown, nil
}

func writeJson(filePath string, data any) error {
	resultsJson, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(filePath, resultsJson, 0644); err != nil {
		logger.WithField("filePath", filePath).WithField("error", err).Error("Failed to write report data to file")
		return err
	}
	logger.WithField("filePath", filePath).Info("Written report data to file")
	return nil
}
