package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/credential-rotators/internal/rotation"
	"github.com/savaki/credential-rotators/internal/services"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// RotateCommand starts an immediate rotation of the npm login secret
func RotateCommand() *cli.Command {
	return &cli.Command{
		Name:  "rotate",
		Usage: "Ask Secrets Manager to rotate the npm login secret now",
		Description: `Starts a rotation with a fresh client request token. Secrets Manager invokes the
configured rotation function for each of the four steps.

Examples:
  credential-rotators rotate --env prd --secret-id npm/ci-bot/login`,
		Flags:  []cli.Flag{envFlag, secretIDFlag},
		Action: rotateAction,
	}
}

// StepCommand runs a single rotation step locally
func StepCommand() *cli.Command {
	return &cli.Command{
		Name:  "step",
		Usage: "Run one rotation step locally",
		Description: `Runs a rotation step through the same handler as the rotation function. The
version identified by --token must already exist, e.g. from an interrupted rotation.

Examples:
  credential-rotators step --secret-id npm/ci-bot/login --token 2HbR5Xq... --step testSecret`,
		Flags: []cli.Flag{
			envFlag,
			secretIDFlag,
			&cli.StringFlag{
				Name:     "token",
				Aliases:  []string{"t"},
				Usage:    "Client request token (version id) of the rotation",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "step",
				Usage:    "createSecret, setSecret, testSecret or finishSecret",
				Required: true,
			},
		},
		Action: stepAction,
	}
}

// CancelRotationCommand removes AWSPENDING from a version
func CancelRotationCommand() *cli.Command {
	return &cli.Command{
		Name:  "cancel-rotation",
		Usage: "Cancel a pending rotation",
		Flags: []cli.Flag{
			envFlag,
			secretIDFlag,
			&cli.StringFlag{
				Name:     "version-id",
				Aliases:  []string{"v"},
				Usage:    "Version ID of the pending rotation to cancel",
				Required: true,
			},
		},
		Action: cancelRotationAction,
	}
}

// HistoryCommand lists the recorded rotation steps for a secret
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"h"},
		Usage:   "List rotation history for a secret",
		Flags: []cli.Flag{
			envFlag,
			secretIDFlag,
			&cli.StringFlag{
				Name:  "id",
				Usage: "Show a single history entry",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output in JSON format",
			},
		},
		Action: historyAction,
	}
}

func rotateAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	container, err := newContainer(c, 0)
	if err != nil {
		return err
	}

	secrets, err := get[*services.SecretsManagerService](container)
	if err != nil {
		return err
	}

	secretID := c.String("secret-id")
	token := ksuid.New().String()

	versionID, err := secrets.StartRotation(c.Context, secretID, token)
	if err != nil {
		return err
	}

	logger.Info().
		Str("secret_id", secretID).
		Str("version_id", versionID).
		Msg("Rotation started")
	return nil
}

func stepAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	step, err := rotation.ParseStep(c.String("step"))
	if err != nil {
		return err
	}

	container, err := newContainer(c, 0)
	if err != nil {
		return err
	}

	handler, err := get[*rotation.Handler](container)
	if err != nil {
		return err
	}

	record := map[string]any{
		rotation.KeySecretID:           c.String("secret-id"),
		rotation.KeyClientRequestToken: c.String("token"),
		rotation.KeyStep:               step.String(),
	}

	if err := handler.RotateLoginPassword(c.Context, record); err != nil {
		return fmt.Errorf("%s step failed: %w", step, err)
	}

	logger.Info().
		Str("step", step.String()).
		Msg("Step completed")
	return nil
}

func cancelRotationAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	container, err := newContainer(c, 0)
	if err != nil {
		return err
	}

	secrets, err := get[*services.SecretsManagerService](container)
	if err != nil {
		return err
	}

	secretID := c.String("secret-id")
	versionID := c.String("version-id")

	if err := secrets.CancelPending(c.Context, secretID, versionID); err != nil {
		return err
	}

	logger.Info().
		Str("secret_id", secretID).
		Str("version_id", versionID).
		Msg("Successfully cancelled pending rotation")
	return nil
}

func historyAction(c *cli.Context) error {
	container, err := newContainer(c, 0)
	if err != nil {
		return err
	}

	history, err := get[*services.HistoryService](container)
	if err != nil {
		return err
	}

	var entries []services.HistoryEntry
	if id := c.String("id"); id != "" {
		entry, err := history.Get(c.Context, id)
		if err != nil {
			return fmt.Errorf("failed to get history entry: %w", err)
		}
		entries = append(entries, entry)
	} else {
		entries, err = history.List(c.Context, c.String("secret-id"))
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
	}

	if c.Bool("json") {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	}

	return displayHistory(c, entries)
}

func displayHistory(c *cli.Context, entries []services.HistoryEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(c.App.Writer, "No rotation history found")
		return nil
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tTOKEN\tSTEP\tSTATUS\tERROR")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.CreatedAt.Format(time.RFC3339),
			entry.Token,
			entry.Step,
			entry.Status,
			entry.Error,
		)
	}
	return w.Flush()
}
