package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/credential-rotators/internal/di"
	"github.com/savaki/credential-rotators/internal/rotation"
	"github.com/urfave/cli/v2"
)

func newHandler(env string) (handler *rotation.Handler, err error) {
	if env == "" {
		return nil, fmt.Errorf("ENV or ENVIRONMENT variable is required")
	}

	container, err := di.New(env)
	if err != nil {
		return nil, fmt.Errorf("failed to setup DI container: %w", err)
	}

	err = container.Invoke(func(h *rotation.Handler) {
		handler = h
	})
	return handler, err
}

// readRecord decodes a rotation event as Secrets Manager sends it
func readRecord(r io.Reader) (map[string]any, error) {
	var record map[string]any
	if err := json.NewDecoder(r).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return record, nil
}

func handleInvokeCommand(c *cli.Context) error {
	logger := di.ProvideLogger().With().Str("lambda", "rotate-login-password").Logger()
	ctx := logger.WithContext(c.Context)

	var in io.Reader = os.Stdin
	if path := c.String("event"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open event: %w", err)
		}
		defer f.Close()
		in = f
	}

	record, err := readRecord(in)
	if err != nil {
		return err
	}

	handler, err := newHandler(c.String("env"))
	if err != nil {
		return err
	}

	return handler.RotateLoginPassword(ctx, record)
}

func startLambda(logger zerolog.Logger, env string) error {
	handler, err := newHandler(env)
	if err != nil {
		return err
	}

	// Wrap handler to inject logger into context
	wrappedHandler := func(ctx context.Context, record map[string]any) error {
		ctx = logger.WithContext(ctx)
		return handler.RotateLoginPassword(ctx, record)
	}
	lambda.Start(wrappedHandler)
	return nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "rotate-login-password").Logger()

	// Check if running in Lambda environment
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = os.Getenv("ENVIRONMENT")
		}
		if err := startLambda(logger, env); err != nil {
			logger.Error().Err(err).Msg("Failed to start rotation handler")
			os.Exit(1)
		}
		return
	}

	// CLI mode replays a recorded event; operator commands live in cmd/credential-rotators
	app := &cli.App{
		Name:           "rotate-login-password",
		Usage:          "Secrets Manager rotation function for npm login passwords",
		DefaultCommand: "invoke",
		Commands: []*cli.Command{
			{
				Name:  "invoke",
				Usage: "Run the handler once with an event read from a file or stdin",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "env",
						Usage:   "Environment name",
						Value:   "dev",
						EnvVars: []string{"ENV", "ENVIRONMENT"},
					},
					&cli.StringFlag{
						Name:  "event",
						Usage: "Path to the event JSON, - for stdin",
						Value: "-",
					},
				},
				Action: handleInvokeCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
