package content

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

// loadStructured parses a JSON or YAML document into generic maps and slices
func loadStructured(path string) (any, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}

	var doc any
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml") {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML %s: %w", path, err)
		}
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON %s: %w", path, err)
	}
	return doc, nil
}

// structuredEqual reports deep equality: mapping keys are order independent,
// sequences are order sensitive. The diff is empty when equal.
func structuredEqual(a, b any) (bool, string) {
	if cmp.Equal(a, b) {
		return true, ""
	}
	return false, cmp.Diff(a, b)
}

func (c *Comparator) compareStructured(outputFile, referenceFile string) FileResult {
	res := FileResult{Kind: KIND_STRUCTURED}

	out, err := loadStructured(outputFile)
	if err != nil {
		return res.withErr(err)
	}
	ref, err := loadStructured(referenceFile)
	if err != nil {
		return res.withErr(err)
	}

	equal, diff := structuredEqual(out, ref)
	if !equal {
		logger.WithField("file", outputFile).WithField("diff", diff).Debug("Structured metadata differs")
	}
	res.Equivalent = equal
	return res
}
