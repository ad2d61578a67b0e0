package matrix

import (
	"fmt"
	"path/filepath"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/gh-nvat/pipecheck/src/pkg/pipeline"
)

// Options tunes how test cases are rendered
type Options struct {
	GPU bool // forwarded into every RunCommand
}

// ImageRef renders "<registry>/<name>:<version>"
func ImageRef(registry string, img models.ImageConfig) string {
	if registry == "" {
		registry = models.DEFAULT_REGISTRY
	}
	return fmt.Sprintf("%s/%s:%s", registry, img.Name, img.Version)
}

// Build expands the configuration into the ordered list of test cases:
// images in declaration order, then workflows in declaration order, then samples.
// A workflow bound to a data sample pairs only with that sample.
func Build(cfg models.HarnessConfig, opts Options) ([]models.TestCase, error) {
	imageIDs := cfg.ImageIDs
	if len(imageIDs) == 0 && len(cfg.Images) > 0 {
		return nil, fmt.Errorf("%w: image order not populated", models.ErrConfigurationMismatch)
	}
	workflowNames := cfg.WorkflowNames
	if len(workflowNames) == 0 && len(cfg.Workflows) > 0 {
		return nil, fmt.Errorf("%w: workflow order not populated", models.ErrConfigurationMismatch)
	}

	var cases []models.TestCase
	declared := make(map[string]string, len(imageIDs))
	for _, id := range imageIDs {
		img, ok := cfg.Images[id]
		if !ok {
			return nil, fmt.Errorf("%w: image %s is not defined", models.ErrConfigurationMismatch, id)
		}
		ref := ImageRef(cfg.Registry, img)
		// a shared ref would also share the output directory
		if other, dup := declared[ref]; dup {
			return nil, fmt.Errorf("%w: images %s and %s both resolve to %s",
				models.ErrConfigurationMismatch, other, id, ref)
		}
		declared[ref] = id

		for _, name := range workflowNames {
			wf, ok := cfg.Workflows[name]
			if !ok {
				return nil, fmt.Errorf("%w: workflow %s is not defined", models.ErrConfigurationMismatch, name)
			}

			for _, sample := range samplesFor(wf, cfg.Samples) {
				cases = append(cases, newTestCase(cfg.Paths, ref, img, name, wf.Config, sample, opts))
			}
		}
	}
	return cases, nil
}

// samplesFor returns the bound sample, or every configured sample
func samplesFor(wf models.WorkflowConfig, samples []string) []string {
	if wf.DataSample != "" {
		return []string{wf.DataSample}
	}
	return samples
}

// newTestCase derives the case paths. Each image version writes its own output
// tree since cases may run concurrently; the reference tree is shared by all
// versions of an image and only ever read.
func newTestCase(paths models.PathsConfig, ref string, img models.ImageConfig, workflow, configRef, sample string, opts Options) models.TestCase {
	inputPath := filepath.Join(paths.InputBaseDir, sample)
	outputPath := filepath.Join(paths.OutputBaseDir, img.Name, img.Version, sample, workflow)
	referencePath := filepath.Join(paths.ReferenceBaseDir, img.Name, sample, workflow)

	var args []string
	if configRef != "" {
		args = []string{"--config", configRef}
	}

	return models.TestCase{
		ImageRef:      ref,
		ImageName:     img.Name,
		WorkflowName:  workflow,
		DataSampleID:  sample,
		ConfigRef:     configRef,
		RunCommand:    pipeline.NewInvocation(ref, inputPath, outputPath, opts.GPU, args...),
		InputPath:     inputPath,
		OutputPath:    outputPath,
		ReferencePath: referencePath,
	}
}
