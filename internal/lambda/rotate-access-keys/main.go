package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/savaki/credential-rotators/internal/di"
	"github.com/savaki/credential-rotators/internal/rotation"
	"github.com/urfave/cli/v2"
)

// Access keys are not rotated; the function exists so the secret can reference a rotation Lambda
func main() {
	logger := di.ProvideLogger().With().Str("lambda", "rotate-access-keys").Logger()
	handler := rotation.NewHandler(nil)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		wrappedHandler := func(ctx context.Context, record map[string]any) error {
			ctx = logger.WithContext(ctx)
			return handler.RotateAccessKeys(ctx, record)
		}
		lambda.Start(wrappedHandler)
		return
	}

	app := &cli.App{
		Name:           "rotate-access-keys",
		Usage:          "Secrets Manager rotation function for npm access keys",
		DefaultCommand: "invoke",
		Commands: []*cli.Command{
			{
				Name:  "invoke",
				Usage: "Invoke the handler once with an empty event",
				Action: func(c *cli.Context) error {
					ctx := logger.WithContext(c.Context)
					if err := handler.RotateAccessKeys(ctx, map[string]any{}); err != nil {
						return err
					}
					logger.Info().Msg("Access key rotation is a no-op")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
