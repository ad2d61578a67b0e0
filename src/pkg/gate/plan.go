package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/gh-nvat/pipecheck/src/pkg/models"
)

const BASE_IMAGE_NAME = "base"

// Plan is the list of images eligible for promotion
type Plan struct {
	Verdicts   []models.ImageVerdict `json:"verdicts"`
	Images     []string              `json:"images"`     // eligible images, ledger order
	BaseImages []string              `json:"baseImages"` // "<registry>/base:<tag>" per tag seen
}

// Promote lists eligible images followed by base images
func (p *Plan) Promote() []string {
	out := make([]string, 0, len(p.Images)+len(p.BaseImages))
	out = append(out, p.Images...)
	return append(out, p.BaseImages...)
}

// BuildPlan applies the policy to every verdict. When at least one image is
// eligible, the base image of every tag seen in the ledger is added too.
func BuildPlan(ctx context.Context, verdicts []models.ImageVerdict, policy Policy, registry string) (*Plan, error) {
	logger.Info("BuildPlan: starting...")
	if policy == nil {
		policy = ConjunctionPolicy{}
	}
	if registry == "" {
		registry = models.DEFAULT_REGISTRY
	}

	plan := &Plan{}
	var tags []string
	seenTag := make(map[string]bool)
	for _, v := range verdicts {
		allowed, err := policy.Allow(ctx, v)
		if err != nil {
			return nil, err
		}
		v.Eligible = allowed
		plan.Verdicts = append(plan.Verdicts, v)
		if allowed {
			plan.Images = append(plan.Images, v.ImageRef)
		}

		if tag := ImageTag(v.ImageRef); tag != "" && !seenTag[tag] {
			seenTag[tag] = true
			tags = append(tags, tag)
		}
	}

	if len(plan.Images) > 0 {
		for _, tag := range tags {
			plan.BaseImages = append(plan.BaseImages, fmt.Sprintf("%s/%s:%s", registry, BASE_IMAGE_NAME, tag))
		}
	}

	logger.Infof("BuildPlan: done, %d of %d images eligible.", len(plan.Images), len(verdicts))
	return plan, nil
}

// ImageTag returns the part after the last ':' unless it belongs to a registry host:port
func ImageTag(ref string) string {
	i := strings.LastIndex(ref, ":")
	if i < 0 || strings.Contains(ref[i+1:], "/") {
		return ""
	}
	return ref[i+1:]
}
