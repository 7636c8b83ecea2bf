package policy

import (
	"context"
	"encoding/json"
	"testing"
)

func TestValidator_ValidateTemplate(t *testing.T) {
	ctx := context.Background()
	validator, err := NewValidator(ctx)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	tests := []struct {
		name             string
		template         string
		expectAllow      bool
		expectViolations []string
	}{
		{
			name: "Role trusted by account with output",
			template: `{
				"Resources": {
					"circleciexecutionrole": {
						"Type": "AWS::IAM::Role",
						"Properties": {
							"AssumeRolePolicyDocument": {
								"Version": "2012-10-17",
								"Statement": [{
									"Effect": "Allow",
									"Action": "sts:AssumeRole",
									"Principal": {"AWS": {"Fn::Sub": "arn:${AWS::Partition}:iam::${AWS::AccountId}:root"}}
								}]
							}
						}
					}
				},
				"Outputs": {
					"circleciexecutionrolearn": {"Value": {"Fn::GetAtt": ["circleciexecutionrole", "Arn"]}}
				}
			}`,
			expectAllow: true,
		},
		{
			name: "Role with parameter",
			template: `{
				"Resources": {
					"circleciexecutionrole": {
						"Type": "AWS::IAM::Role",
						"Properties": {
							"AssumeRolePolicyDocument": {
								"Statement": [{"Effect": "Allow", "Principal": {"AWS": "arn:aws:iam::123456789012:root"}}]
							}
						}
					},
					"circleciexecutionroleparameter": {
						"Type": "AWS::SSM::Parameter",
						"Properties": {"Type": "String", "Name": "/common/circleci_execution_role", "Value": "x"}
					}
				}
			}`,
			expectAllow: true,
		},
		{
			name: "Unsupported resource type",
			template: `{
				"Resources": {
					"Bucket": {"Type": "AWS::S3::Bucket", "Properties": {}}
				}
			}`,
			expectAllow:      false,
			expectViolations: []string{"resource Bucket has unsupported type AWS::S3::Bucket"},
		},
		{
			name: "Wildcard principal",
			template: `{
				"Resources": {
					"OpenRole": {
						"Type": "AWS::IAM::Role",
						"Properties": {
							"AssumeRolePolicyDocument": {
								"Statement": [{"Effect": "Allow", "Principal": {"AWS": "*"}}]
							}
						}
					}
				}
			}`,
			expectAllow:      false,
			expectViolations: []string{"role OpenRole can be assumed by any principal"},
		},
		{
			name: "Wildcard principal in list and secure string parameter",
			template: `{
				"Resources": {
					"OpenRole": {
						"Type": "AWS::IAM::Role",
						"Properties": {
							"AssumeRolePolicyDocument": {
								"Statement": [{"Effect": "Allow", "Principal": {"AWS": ["arn:aws:iam::123456789012:root", "*"]}}]
							}
						}
					},
					"Param": {
						"Type": "AWS::SSM::Parameter",
						"Properties": {"Type": "StringList", "Value": "a,b"}
					}
				}
			}`,
			expectAllow: false,
			expectViolations: []string{
				"parameter Param must be of type String",
				"role OpenRole can be assumed by any principal",
			},
		},
		{
			name: "Role without trust policy",
			template: `{
				"Resources": {
					"Role": {"Type": "AWS::IAM::Role", "Properties": {}}
				}
			}`,
			expectAllow:      false,
			expectViolations: []string{"role Role has no trust policy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var template map[string]any
			if err := json.Unmarshal([]byte(tt.template), &template); err != nil {
				t.Fatalf("Failed to parse template: %v", err)
			}

			result, err := validator.ValidateTemplate(ctx, template)
			if err != nil {
				t.Fatalf("ValidateTemplate() error = %v", err)
			}

			if result.Allowed != tt.expectAllow {
				t.Errorf("ValidateTemplate() allowed = %v, want %v (violations: %v)", result.Allowed, tt.expectAllow, result.Violations)
			}

			if len(tt.expectViolations) > 0 {
				if len(result.Violations) != len(tt.expectViolations) {
					t.Fatalf("ValidateTemplate() violations = %v, want %v", result.Violations, tt.expectViolations)
				}
				for i, want := range tt.expectViolations {
					if result.Violations[i] != want {
						t.Errorf("violation[%d] = %q, want %q", i, result.Violations[i], want)
					}
				}
			}
		})
	}
}
