package stack

import (
	"fmt"
	"strings"
)

// PublishMode selects how a common stack exposes the execution role ARN
type PublishMode string

const (
	// PublishOutput exposes the role ARN as a stack output
	PublishOutput PublishMode = "output"
	// PublishParameter writes the role ARN to Parameter Store
	PublishParameter PublishMode = "parameter"
)

const (
	ExecutionRoleName   = "circleci_execution_role"
	ExecutionRoleOutput = "circleciexecutionrolearn"

	accountRootPrincipal = "arn:${AWS::Partition}:iam::${AWS::AccountId}:root"
)

// ParsePublishMode converts a flag value into a PublishMode
func ParsePublishMode(s string) (PublishMode, error) {
	switch mode := PublishMode(s); mode {
	case PublishOutput, PublishParameter:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid publish mode %q, expected %q or %q", s, PublishOutput, PublishParameter)
	}
}

// RoleRef refers to an IAM role declared in a template
type RoleRef struct {
	LogicalID string
}

// Arn returns the intrinsic resolving to the role ARN
func (r RoleRef) Arn() map[string]any {
	return GetAtt(r.LogicalID, "Arn")
}

// CommonStack provisions the execution role assumed by CI jobs.
type CommonStack struct {
	ID       string
	Mode     PublishMode
	Template *Template

	executionRole RoleRef
}

// NewCommonStack builds the stack with one role assumable by the deploying account
func NewCommonStack(id string, mode PublishMode) (*CommonStack, error) {
	if id == "" {
		return nil, fmt.Errorf("stack id is required")
	}

	s := &CommonStack{
		ID:       id,
		Mode:     mode,
		Template: NewTemplate(fmt.Sprintf("Common resources for %s", id)),
	}

	role, err := s.addAccountRole(ExecutionRoleName)
	if err != nil {
		return nil, err
	}
	s.SetExecutionRole(role)

	switch mode {
	case PublishOutput:
		err = s.Template.AddOutput(ExecutionRoleOutput, Output{
			Description: "ARN of the CI execution role",
			Value:       role.Arn(),
		})
	case PublishParameter:
		err = StringParameter(s, ExecutionRoleName, role.Arn())
	default:
		err = fmt.Errorf("invalid publish mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

// ExecutionRole returns the role CI jobs assume
func (s *CommonStack) ExecutionRole() RoleRef {
	return s.executionRole
}

// SetExecutionRole replaces the role CI jobs assume
func (s *CommonStack) SetExecutionRole(role RoleRef) {
	s.executionRole = role
}

// ParameterName returns the Parameter Store name a value is published under
func (s *CommonStack) ParameterName(name string) string {
	return ParameterName(s.ID, name)
}

func (s *CommonStack) addAccountRole(name string) (RoleRef, error) {
	role := RoleRef{LogicalID: LogicalID(name)}
	err := s.Template.AddResource(role.LogicalID, Resource{
		Type: "AWS::IAM::Role",
		Properties: map[string]any{
			"AssumeRolePolicyDocument": map[string]any{
				"Version": "2012-10-17",
				"Statement": []any{
					map[string]any{
						"Effect":    "Allow",
						"Action":    "sts:AssumeRole",
						"Principal": map[string]any{"AWS": Sub(accountRootPrincipal)},
					},
				},
			},
		},
	})
	return role, err
}

// StringParameter publishes value in Parameter Store under /{stack id}/{name}
func StringParameter(s *CommonStack, name string, value any) error {
	return s.Template.AddResource(LogicalID(name+"_parameter"), Resource{
		Type: "AWS::SSM::Parameter",
		Properties: map[string]any{
			"Name":  s.ParameterName(name),
			"Type":  "String",
			"Value": value,
		},
	})
}

// ParameterName returns the Parameter Store name for a value published by a stack
func ParameterName(stackID, name string) string {
	return fmt.Sprintf("/%s/%s", stackID, name)
}

// LogicalID strips characters CloudFormation does not accept in logical ids
func LogicalID(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
