package stack

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/savaki/credential-rotators/internal/errors"
	"github.com/savaki/credential-rotators/internal/policy"
	"github.com/savaki/credential-rotators/internal/utils"
)

// CloudFormationAPI is the subset of the CloudFormation client used by Deployer
type CloudFormationAPI interface {
	cloudformation.DescribeStacksAPIClient
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStackResource(ctx context.Context, params *cloudformation.DescribeStackResourceInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackResourceOutput, error)
}

// ParameterReader reads values published to Parameter Store
type ParameterReader interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// TrustChecker reports whether a role is assumable by the deploying account only
type TrustChecker interface {
	RoleTrustsAccount(ctx context.Context, roleName string) (bool, error)
}

// TemplateValidator checks a template document before it is deployed
type TemplateValidator interface {
	ValidateTemplate(ctx context.Context, template map[string]any) (*policy.ValidationResult, error)
}

type DeployResult struct {
	StackName string `json:"stack_name"`
	StackID   string `json:"stack_id"`
	Operation string `json:"operation"`
}

type Deployer struct {
	cfClient    CloudFormationAPI
	params      ParameterReader
	trust       TrustChecker
	validator   TemplateValidator
	waitTimeout time.Duration
	tags        map[string]string
}

type DeployerOption func(*Deployer)

// WithWait blocks deploy and delete calls until the stack settles or the timeout passes
func WithWait(timeout time.Duration) DeployerOption {
	return func(d *Deployer) {
		d.waitTimeout = timeout
	}
}

// WithValidator validates every template before it is deployed
func WithValidator(validator TemplateValidator) DeployerOption {
	return func(d *Deployer) {
		d.validator = validator
	}
}

// WithTags adds tags to every stack; ManagedBy cannot be overridden
func WithTags(tags map[string]string) DeployerOption {
	return func(d *Deployer) {
		d.tags = tags
	}
}

func NewDeployer(cfClient CloudFormationAPI, params ParameterReader, trust TrustChecker, opts ...DeployerOption) *Deployer {
	d := &Deployer{
		cfClient: cfClient,
		params:   params,
		trust:    trust,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy creates the stack or updates it in place
func (d *Deployer) Deploy(ctx context.Context, s *CommonStack) (result *DeployResult, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Err(err).
			Str("stack_name", s.ID).
			Dur("duration", time.Since(begin)).
			Msg("Deploy completed")
	}(time.Now())

	if err := d.validate(ctx, s); err != nil {
		return nil, err
	}

	body, err := s.Template.Body()
	if err != nil {
		return nil, err
	}

	exists, err := d.stackExists(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check if stack exists: %w", err)
	}

	if exists {
		result, err = d.updateStack(ctx, s.ID, body)
	} else {
		result, err = d.createStack(ctx, s.ID, body)
	}
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("operation", result.Operation).
		Str("stack_name", s.ID).
		Msg("Stack operation started")

	if d.waitTimeout > 0 {
		if err := d.wait(ctx, s.ID, result.Operation); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (d *Deployer) validate(ctx context.Context, s *CommonStack) error {
	if d.validator == nil {
		return nil
	}

	doc, err := s.Template.Document()
	if err != nil {
		return err
	}

	validation, err := d.validator.ValidateTemplate(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to validate template: %w", err)
	}

	if !validation.Allowed {
		return fmt.Errorf("%w: %s", errors.ErrPolicyViolation, strings.Join(validation.Violations, "; "))
	}

	return nil
}

func (d *Deployer) stackExists(ctx context.Context, stackName string) (bool, error) {
	_, err := d.cfClient.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isStackMissing(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *Deployer) createStack(ctx context.Context, stackName, body string) (*DeployResult, error) {
	result, err := d.cfClient.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(stackName),
		TemplateBody: aws.String(body),
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
		},
		Tags: d.stackTags(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stack: %w", err)
	}

	return &DeployResult{
		StackName: stackName,
		StackID:   aws.ToString(result.StackId),
		Operation: "CREATE",
	}, nil
}

func (d *Deployer) updateStack(ctx context.Context, stackName, body string) (*DeployResult, error) {
	result, err := d.cfClient.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(stackName),
		TemplateBody: aws.String(body),
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
		},
		Tags: d.stackTags(),
	})
	if err != nil {
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) && strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed") {
			return &DeployResult{
				StackName: stackName,
				Operation: "NONE",
			}, nil
		}
		return nil, fmt.Errorf("failed to update stack: %w", err)
	}

	return &DeployResult{
		StackName: stackName,
		StackID:   aws.ToString(result.StackId),
		Operation: "UPDATE",
	}, nil
}

func (d *Deployer) wait(ctx context.Context, stackName, operation string) error {
	input := &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}

	var err error
	switch operation {
	case "CREATE":
		err = cloudformation.NewStackCreateCompleteWaiter(d.cfClient).Wait(ctx, input, d.waitTimeout)
	case "UPDATE":
		err = cloudformation.NewStackUpdateCompleteWaiter(d.cfClient).Wait(ctx, input, d.waitTimeout)
	case "DELETE":
		err = cloudformation.NewStackDeleteCompleteWaiter(d.cfClient).Wait(ctx, input, d.waitTimeout)
	}
	if err != nil {
		return fmt.Errorf("stack %s did not complete %s: %w", stackName, strings.ToLower(operation), err)
	}
	return nil
}

// ExecutionRoleARN reads the published ARN of the stack's execution role
func (d *Deployer) ExecutionRoleARN(ctx context.Context, s *CommonStack) (string, error) {
	if s.Mode == PublishParameter {
		name := s.ParameterName(ExecutionRoleName)
		arn, err := d.params.GetParameter(ctx, name)
		if err != nil {
			return "", err
		}
		if arn == "" {
			return "", fmt.Errorf("%w: parameter %s of stack %s is empty", errors.ErrStackOutputNotFound, name, s.ID)
		}
		return arn, nil
	}

	result, err := d.cfClient.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(s.ID),
	})
	if err != nil {
		if isStackMissing(err) {
			return "", fmt.Errorf("%w: %s", errors.ErrStackNotFound, s.ID)
		}
		return "", fmt.Errorf("failed to describe stack: %w", err)
	}

	if len(result.Stacks) == 0 {
		return "", fmt.Errorf("%w: %s", errors.ErrStackNotFound, s.ID)
	}

	for _, output := range result.Stacks[0].Outputs {
		if aws.ToString(output.OutputKey) == ExecutionRoleOutput && aws.ToString(output.OutputValue) != "" {
			return aws.ToString(output.OutputValue), nil
		}
	}

	return "", fmt.Errorf("%w: %s in stack %s", errors.ErrStackOutputNotFound, ExecutionRoleOutput, s.ID)
}

// Verify checks that the deployed execution role only trusts the deploying account
func (d *Deployer) Verify(ctx context.Context, s *CommonStack) error {
	result, err := d.cfClient.DescribeStackResource(ctx, &cloudformation.DescribeStackResourceInput{
		StackName:         aws.String(s.ID),
		LogicalResourceId: aws.String(s.ExecutionRole().LogicalID),
	})
	if err != nil {
		if isStackMissing(err) {
			return fmt.Errorf("%w: %s", errors.ErrStackNotFound, s.ID)
		}
		return fmt.Errorf("failed to describe execution role: %w", err)
	}

	if result.StackResourceDetail == nil || result.StackResourceDetail.PhysicalResourceId == nil {
		return fmt.Errorf("execution role of stack %s has not been created", s.ID)
	}

	roleName := *result.StackResourceDetail.PhysicalResourceId
	trusted, err := d.trust.RoleTrustsAccount(ctx, roleName)
	if err != nil {
		return err
	}
	if !trusted {
		return fmt.Errorf("%w: role %s is not limited to the deploying account", errors.ErrPolicyViolation, roleName)
	}

	return nil
}

// Delete removes the stack
func (d *Deployer) Delete(ctx context.Context, stackName string) error {
	_, err := d.cfClient.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		return fmt.Errorf("failed to delete stack: %w", err)
	}

	if d.waitTimeout > 0 {
		return d.wait(ctx, stackName, "DELETE")
	}
	return nil
}

func isStackMissing(err error) bool {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}

func (d *Deployer) stackTags() []types.Tag {
	return utils.MergeTags(d.tags, map[string]string{"ManagedBy": "credential-rotators"})
}
