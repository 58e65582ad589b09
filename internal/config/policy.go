package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
)

// policyFile is the on-disk shape of the metric policy:
//
//	lower_is_better: [delivery, time, lead]
//	higher_is_better: [quality, score, level]
//	default: lower
type policyFile struct {
	LowerIsBetter  []string `yaml:"lower_is_better"`
	HigherIsBetter []string `yaml:"higher_is_better"`
	Default        string   `yaml:"default"`
}

// LoadMetricPolicy reads the policy at path. An empty path yields the
// built-in policy; omitted keys keep their built-in values.
func LoadMetricPolicy(path string) (compliance.MetricPolicy, error) {
	policy := compliance.DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("metric policy: %w", err)
	}
	return ParseMetricPolicy(raw)
}

func ParseMetricPolicy(raw []byte) (compliance.MetricPolicy, error) {
	policy := compliance.DefaultPolicy()
	var f policyFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return policy, fmt.Errorf("metric policy: %w", err)
	}
	if f.LowerIsBetter != nil {
		policy.LowerIsBetter = f.LowerIsBetter
	}
	if f.HigherIsBetter != nil {
		policy.HigherIsBetter = f.HigherIsBetter
	}
	switch compliance.Direction(f.Default) {
	case "":
	case compliance.LowerIsBetter, compliance.HigherIsBetter:
		policy.Default = compliance.Direction(f.Default)
	default:
		return policy, fmt.Errorf("metric policy: default must be %q or %q, got %q", compliance.LowerIsBetter, compliance.HigherIsBetter, f.Default)
	}
	return policy, nil
}
