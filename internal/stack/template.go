// Package stack defines and deploys the CloudFormation stacks that provision the
// CI execution role.
package stack

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

const formatVersion = "2010-09-09"

// Template is a CloudFormation template document
type Template struct {
	AWSTemplateFormatVersion string              `yaml:"AWSTemplateFormatVersion" json:"AWSTemplateFormatVersion"`
	Description              string              `yaml:"Description,omitempty" json:"Description,omitempty"`
	Resources                map[string]Resource `yaml:"Resources" json:"Resources"`
	Outputs                  map[string]Output   `yaml:"Outputs,omitempty" json:"Outputs,omitempty"`
}

// Resource is a single entry of the Resources section
type Resource struct {
	Type       string         `yaml:"Type" json:"Type"`
	Properties map[string]any `yaml:"Properties,omitempty" json:"Properties,omitempty"`
}

// Output is a single entry of the Outputs section
type Output struct {
	Description string `yaml:"Description,omitempty" json:"Description,omitempty"`
	Value       any    `yaml:"Value" json:"Value"`
}

func NewTemplate(description string) *Template {
	return &Template{
		AWSTemplateFormatVersion: formatVersion,
		Description:              description,
		Resources:                map[string]Resource{},
	}
}

// AddResource registers a resource under a logical id
func (t *Template) AddResource(logicalID string, resource Resource) error {
	if _, ok := t.Resources[logicalID]; ok {
		return fmt.Errorf("duplicate resource %s", logicalID)
	}
	t.Resources[logicalID] = resource
	return nil
}

// AddOutput registers a stack output
func (t *Template) AddOutput(name string, output Output) error {
	if t.Outputs == nil {
		t.Outputs = map[string]Output{}
	}
	if _, ok := t.Outputs[name]; ok {
		return fmt.Errorf("duplicate output %s", name)
	}
	t.Outputs[name] = output
	return nil
}

// Body renders the template as YAML
func (t *Template) Body() (string, error) {
	data, err := yaml.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template: %w", err)
	}
	return string(data), nil
}

// Document returns the template as generic JSON values, the form the policy validator consumes
func (t *Template) Document() (map[string]any, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	return doc, nil
}

// GetAtt returns a CloudFormation Fn::GetAtt intrinsic
func GetAtt(logicalID, attribute string) map[string]any {
	return map[string]any{"Fn::GetAtt": []string{logicalID, attribute}}
}

// Sub returns a CloudFormation Fn::Sub intrinsic
func Sub(s string) map[string]any {
	return map[string]any{"Fn::Sub": s}
}
