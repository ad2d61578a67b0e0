package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var logger = log.WithField("package", "config")

// Load reads and validates a harness configuration file.
// Image and workflow order follows the order of keys in the document.
func Load(path string) (*models.HarnessConfig, error) {
	logger.WithField("path", path).Info("Load: starting...")

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config: %v", models.ErrConfigurationMismatch, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Name = BaseName(path)
	if err := resolvePaths(&cfg.Paths, filepath.Dir(path)); err != nil {
		return nil, err
	}

	logger.Infof("Load: done, %d images, %d workflows.", len(cfg.ImageIDs), len(cfg.WorkflowNames))
	return cfg, nil
}

// Parse decodes a configuration document, applies defaults and validates it
func Parse(data []byte) (*models.HarnessConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", models.ErrConfigurationMismatch, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty config", models.ErrConfigurationMismatch)
	}

	cfg := &models.HarnessConfig{}
	if err := root.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to decode config: %v", models.ErrConfigurationMismatch, err)
	}
	cfg.ImageIDs = mappingKeys(root.Content[0], "images")
	cfg.WorkflowNames = mappingKeys(root.Content[0], "workflows")

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BaseName strips directory and extension: "configs/nightly.yml" -> "nightly"
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// resolvePaths makes the base directories absolute, relative ones taken from
// the directory holding the configuration. Container bind mounts need
// absolute host paths.
func resolvePaths(paths *models.PathsConfig, dir string) error {
	for _, p := range []*string{&paths.InputBaseDir, &paths.OutputBaseDir, &paths.ReferenceBaseDir} {
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("%w: failed to resolve %s: %v", models.ErrConfigurationMismatch, *p, err)
		}
		*p = abs
	}
	return nil
}

// mappingKeys returns the keys of doc[field] in document order
func mappingKeys(doc *yaml.Node, field string) []string {
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != field {
			continue
		}
		value := doc.Content[i+1]
		if value.Kind != yaml.MappingNode {
			return nil
		}
		keys := make([]string, 0, len(value.Content)/2)
		for j := 0; j+1 < len(value.Content); j += 2 {
			keys = append(keys, value.Content[j].Value)
		}
		return keys
	}
	return nil
}

func applyDefaults(cfg *models.HarnessConfig) {
	if cfg.Registry == "" {
		cfg.Registry = models.DEFAULT_REGISTRY
	}
	if cfg.Comparison.DiceThreshold == nil {
		threshold := models.DEFAULT_DICE_THRESHOLD
		cfg.Comparison.DiceThreshold = &threshold
	}
	if cfg.Comparison.SegmentAggregation == "" {
		cfg.Comparison.SegmentAggregation = models.SEGMENT_AGGREGATION_ALL
	}
}

// Validate checks required fields and cross references
func Validate(cfg *models.HarnessConfig) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", models.ErrConfigurationMismatch, fmt.Sprintf(format, args...))
	}

	if len(cfg.Images) == 0 {
		return fail("no images defined")
	}
	for _, id := range cfg.ImageIDs {
		img := cfg.Images[id]
		if img.Name == "" {
			return fail("image %s: name is required", id)
		}
		if img.Version == "" {
			return fail("image %s: version is required", id)
		}
	}

	if len(cfg.Workflows) == 0 {
		return fail("no workflows defined")
	}
	samples := make(map[string]bool, len(cfg.Samples))
	for _, s := range cfg.Samples {
		if s == "" {
			return fail("empty data sample id")
		}
		if samples[s] {
			return fail("duplicate data sample %s", s)
		}
		samples[s] = true
	}
	for _, name := range cfg.WorkflowNames {
		wf := cfg.Workflows[name]
		if wf.DataSample == "" && len(cfg.Samples) == 0 {
			return fail("workflow %s: no data_sample and no samples list", name)
		}
	}

	if cfg.Paths.InputBaseDir == "" {
		return fail("paths.input_base_dir is required")
	}
	if cfg.Paths.OutputBaseDir == "" {
		return fail("paths.output_base_dir is required")
	}
	if cfg.Paths.ReferenceBaseDir == "" {
		return fail("paths.reference_base_dir is required")
	}

	c := cfg.Comparison
	if t := c.Threshold(); t < 0 || t > 1 {
		return fail("comparison.dice_threshold must be within [0, 1], got %v", t)
	}
	if c.SegmentAggregation != models.SEGMENT_AGGREGATION_ALL && c.SegmentAggregation != models.SEGMENT_AGGREGATION_MEAN {
		return fail("comparison.segment_aggregation must be %q or %q, got %q",
			models.SEGMENT_AGGREGATION_ALL, models.SEGMENT_AGGREGATION_MEAN, c.SegmentAggregation)
	}
	return nil
}
