package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/credential-rotators/internal/stack"
	"github.com/urfave/cli/v2"
)

var stackFlags = []cli.Flag{
	envFlag,
	&cli.StringFlag{
		Name:     "id",
		Usage:    "Stack id, e.g. common or ios-integ-common",
		Required: true,
		EnvVars:  []string{"STACK_ID"},
	},
	&cli.StringFlag{
		Name:    "publish",
		Aliases: []string{"p"},
		Usage:   "How the execution role ARN is published: output or parameter",
		Value:   string(stack.PublishOutput),
		EnvVars: []string{"STACK_PUBLISH"},
	},
	&cli.StringSliceFlag{
		Name:  "tag",
		Usage: "Stack tag as Key=Value (repeatable)",
	},
}

// StackCommand returns the stack command for managing common stacks
func StackCommand() *cli.Command {
	return &cli.Command{
		Name:  "stack",
		Usage: "Manage common stacks that provision the CI execution role",
		Description: `A common stack holds one IAM role that only the deploying account can assume.
The role ARN is published either as the stack output circleciexecutionrolearn or
as the parameter /<id>/circleci_execution_role.

Examples:
  # Render the template without touching AWS
  credential-rotators stack template --id common

  # Deploy the integration stack publishing the ARN to Parameter Store
  credential-rotators stack deploy --id ios-integ-common --publish parameter --wait 10m`,
		Subcommands: []*cli.Command{
			{
				Name:   "template",
				Usage:  "Print the CloudFormation template",
				Flags:  stackFlags,
				Action: templateAction,
			},
			{
				Name:  "deploy",
				Usage: "Create or update the stack",
				Flags: append([]cli.Flag{
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "Wait up to this long for the stack to settle (0 returns immediately)",
						Value: 10 * time.Minute,
					},
				}, stackFlags...),
				Action: deployAction,
			},
			{
				Name:   "role-arn",
				Usage:  "Print the published execution role ARN",
				Flags:  stackFlags,
				Action: roleARNAction,
			},
			{
				Name:   "verify",
				Usage:  "Check that the execution role only trusts the deploying account",
				Flags:  stackFlags,
				Action: verifyAction,
			},
			{
				Name:  "delete",
				Usage: "Delete the stack",
				Flags: append([]cli.Flag{
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "Wait up to this long for the deletion to finish (0 returns immediately)",
						Value: 10 * time.Minute,
					},
				}, stackFlags...),
				Action: deleteAction,
			},
		},
	}
}

func buildStack(c *cli.Context) (*stack.CommonStack, error) {
	mode, err := stack.ParsePublishMode(c.String("publish"))
	if err != nil {
		return nil, err
	}
	return stack.NewCommonStack(c.String("id"), mode)
}

func deployerFor(c *cli.Context) (*stack.Deployer, *stack.CommonStack, error) {
	s, err := buildStack(c)
	if err != nil {
		return nil, nil, err
	}

	container, err := newContainer(c, c.Duration("wait"))
	if err != nil {
		return nil, nil, err
	}

	deployer, err := get[*stack.Deployer](container)
	if err != nil {
		return nil, nil, err
	}
	return deployer, s, nil
}

func templateAction(c *cli.Context) error {
	s, err := buildStack(c)
	if err != nil {
		return err
	}

	body, err := s.Template.Body()
	if err != nil {
		return err
	}

	fmt.Fprint(c.App.Writer, body)
	return nil
}

func deployAction(c *cli.Context) error {
	deployer, s, err := deployerFor(c)
	if err != nil {
		return err
	}

	result, err := deployer.Deploy(c.Context, s)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}

func roleARNAction(c *cli.Context) error {
	deployer, s, err := deployerFor(c)
	if err != nil {
		return err
	}

	arn, err := deployer.ExecutionRoleARN(c.Context, s)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, arn)
	return nil
}

func verifyAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	deployer, s, err := deployerFor(c)
	if err != nil {
		return err
	}

	if err := deployer.Verify(c.Context, s); err != nil {
		return err
	}

	logger.Info().
		Str("stack_name", s.ID).
		Msg("Execution role is limited to the deploying account")
	return nil
}

func deleteAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	deployer, s, err := deployerFor(c)
	if err != nil {
		return err
	}

	if err := deployer.Delete(c.Context, s.ID); err != nil {
		return err
	}

	logger.Info().
		Str("stack_name", s.ID).
		Msg("Stack deleted")
	return nil
}
