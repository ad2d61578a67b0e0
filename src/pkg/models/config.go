package models

// HarnessConfig represents the complete test configuration
// - Images: id -> ImageConfig
// - ImageIDs / WorkflowNames: ordered keys (preserves YAML order)
type HarnessConfig struct {
	Name       string                    `yaml:"-"` // configuration base name, names the ledger file
	Registry   string                    `yaml:"registry"`
	Images     map[string]ImageConfig    `yaml:"images"`
	Workflows  map[string]WorkflowConfig `yaml:"workflows"`
	Samples    []string                  `yaml:"samples,omitempty"`
	Paths      PathsConfig               `yaml:"paths"`
	Comparison ComparisonConfig          `yaml:"comparison"`

	ImageIDs      []string `yaml:"-"` // Not in YAML, populated during load
	WorkflowNames []string `yaml:"-"` // Not in YAML, populated during load
}

// ImageConfig identifies one pipeline image under test
type ImageConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// WorkflowConfig binds a workflow to a data sample and a config reference
type WorkflowConfig struct {
	DataSample string `yaml:"data_sample,omitempty"` // empty means every entry of HarnessConfig.Samples
	Config     string `yaml:"config,omitempty"`
}

// PathsConfig holds the base directories for input, output and reference data
type PathsConfig struct {
	InputBaseDir     string `yaml:"input_base_dir"`
	OutputBaseDir    string `yaml:"output_base_dir"`
	ReferenceBaseDir string `yaml:"reference_base_dir"`
}

// ComparisonConfig tunes how outputs are judged against references
type ComparisonConfig struct {
	DiceThreshold      *float64 `yaml:"dice_threshold,omitempty"` // nil means DEFAULT_DICE_THRESHOLD
	StrictBinaryCheck  bool     `yaml:"strict_binary_check,omitempty"`
	SegmentAggregation string   `yaml:"segment_aggregation,omitempty"` // "all" (default) or "mean"
	Ignore             []string `yaml:"ignore,omitempty"`
}

// Threshold returns the configured Dice threshold, an explicit 0 included
func (c ComparisonConfig) Threshold() float64 {
	if c.DiceThreshold == nil {
		return DEFAULT_DICE_THRESHOLD
	}
	return *c.DiceThreshold
}

const (
	DEFAULT_REGISTRY       = "mhubai"
	DEFAULT_DICE_THRESHOLD = 0.99

	SEGMENT_AGGREGATION_ALL  = "all"
	SEGMENT_AGGREGATION_MEAN = "mean"
)
