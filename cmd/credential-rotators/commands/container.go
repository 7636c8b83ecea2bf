package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/savaki/credential-rotators/internal/di"
	"github.com/urfave/cli/v2"
)

var envFlag = &cli.StringFlag{
	Name:    "env",
	Aliases: []string{"e"},
	Usage:   "Environment (dev, stg, or prd) - selects configuration and the history table",
	Value:   "dev",
	EnvVars: []string{"ENV", "ENVIRONMENT"},
}

var secretIDFlag = &cli.StringFlag{
	Name:     "secret-id",
	Aliases:  []string{"s"},
	Usage:    "Secret ID holding the npm login",
	Required: true,
	EnvVars:  []string{"SECRET_ID"},
}

func newContainer(c *cli.Context, wait time.Duration) (di.Container, error) {
	env := c.String("env")
	if env == "" {
		return nil, fmt.Errorf("--env is required")
	}

	tags, err := parseTags(c.StringSlice("tag"))
	if err != nil {
		return nil, err
	}

	container, err := di.New(env,
		di.WithStackWaitTimeout(wait),
		di.WithStackTags(tags),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to setup DI container: %w", err)
	}
	return container, nil
}

// parseTags converts Key=Value pairs into a tag map
func parseTags(pairs []string) (map[string]string, error) {
	tags := map[string]string{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid tag %q, expected Key=Value", pair)
		}
		tags[key] = strings.TrimSpace(value)
	}
	return tags, nil
}

func get[T any](container di.Container) (want T, err error) {
	err = container.Invoke(func(got T) {
		want = got
	})
	return want, err
}
