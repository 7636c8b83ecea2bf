package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/savaki/credential-rotators/internal/policy"
	"github.com/savaki/credential-rotators/internal/services"
	"github.com/savaki/credential-rotators/internal/stack"
)

func ProvidePolicyValidator(ctx context.Context) (*policy.Validator, error) {
	validator, err := policy.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy validator: %w", err)
	}
	return validator, nil
}

// ProvideStackParameterReader reads values stacks publish to SSM, regardless of DISABLE_SSM
func ProvideStackParameterReader(awsConfig aws.Config, env string) stack.ParameterReader {
	return services.NewSSMParameterStore(ssm.NewFromConfig(awsConfig), env)
}

func ProvideDeployer(cfClient *cloudformation.Client, params stack.ParameterReader, iamService *services.IAMService, validator *policy.Validator, wait StackWaitTimeout, tags StackTags) *stack.Deployer {
	return stack.NewDeployer(cfClient, params, iamService,
		stack.WithValidator(validator),
		stack.WithWait(time.Duration(wait)),
		stack.WithTags(tags),
	)
}
