package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"titanic-predictor/internal/auth"
	"titanic-predictor/internal/cfg"
	"titanic-predictor/internal/client"
	"titanic-predictor/internal/common"
	"titanic-predictor/internal/validation"
)

var (
	urlFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "Base URL of the prediction API",
		Value:   common.DefaultAPIBaseURL,
		Sources: cli.EnvVars(common.EnvAPIBaseURL),
	}
	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "Bearer token for /predict",
		Sources: cli.EnvVars(common.EnvAPIToken),
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Request timeout",
		Value: 10 * time.Second,
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs",
	}
)

func main() {
	app := &cli.Command{
		Name:  "titanicctl",
		Usage: "Issue tokens for and query the Titanic survival predictor",
		Flags: []cli.Flag{urlFlag, timeoutFlag, debugFlag},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := zerolog.WarnLevel
			if cmd.Bool(debugFlag.Name) {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			return ctx, nil
		},
		Commands: []*cli.Command{
			tokenCmd(),
			keygenCmd(),
			predictCmd(),
			healthCmd(),
			modelsCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token using the service's JWT configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Token subject", Value: "cli"},
			&cli.StringFlag{Name: "roles", Usage: "Comma-separated roles", Value: auth.RolePredictor},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			settings, err := cfg.Load()
			if err != nil {
				return err
			}
			svc, err := auth.NewService(settings.JWT)
			if err != nil {
				return err
			}
			var roles []string
			for _, r := range strings.Split(cmd.String("roles"), ",") {
				if r = strings.TrimSpace(r); r != "" {
					roles = append(roles, r)
				}
			}
			tok, err := svc.GenerateToken(cmd.String("user"), roles)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
}

func keygenCmd() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Write a fresh RS256 key pair",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "Output directory", Value: "keys"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			priv, pub, err := auth.GenerateKeyPair()
			if err != nil {
				return err
			}
			dir := cmd.String("out")
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, "jwt_private.pem"), priv, 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, "jwt_public.pem"), pub, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s and %s\n", filepath.Join(dir, "jwt_private.pem"), filepath.Join(dir, "jwt_public.pem"))
			return nil
		},
	}
}

func predictCmd() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Score one passenger",
		Flags: []cli.Flag{
			tokenFlag,
			&cli.StringFlag{Name: "pclass", Usage: "Ticket class: 1, 2 or 3", Required: true},
			&cli.StringFlag{Name: "sex", Usage: "male or female", Required: true},
			&cli.StringFlag{Name: "age", Usage: "Age in years (omit if unknown)"},
			&cli.StringFlag{Name: "sibsp", Usage: "Siblings or spouses aboard", Value: "0"},
			&cli.StringFlag{Name: "parch", Usage: "Parents or children aboard", Value: "0"},
			&cli.StringFlag{Name: "fare", Usage: "Ticket fare (omit if unknown)"},
			&cli.StringFlag{Name: "embarked", Usage: "Port: C, Q or S (omit if unknown)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			in, err := passengerFromFlags(cmd)
			if err != nil {
				return err
			}
			resp, err := newClient(cmd).Predict(ctx, in)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func healthCmd() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Show service health",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "detailed", Usage: "Run every server-side check"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c := newClient(cmd)
			if cmd.Bool("detailed") {
				report, err := c.HealthDetailed(ctx)
				if report != nil {
					if perr := printJSON(report); perr != nil {
						return perr
					}
				}
				return err
			}
			st, err := c.Health(ctx)
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "Show loaded model metadata",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info, err := newClient(cmd).ModelsInfo(ctx)
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
}

func newClient(cmd *cli.Command) *client.Client {
	return client.New(cmd.String(urlFlag.Name), cmd.String(tokenFlag.Name), cmd.Duration(timeoutFlag.Name),
		client.WithRetries(2, 500*time.Millisecond))
}

func passengerFromFlags(cmd *cli.Command) (validation.PassengerInput, error) {
	var in validation.PassengerInput
	var err error
	if in.Pclass, err = intFlag(cmd, "pclass"); err != nil {
		return in, err
	}
	if in.SibSp, err = intFlag(cmd, "sibsp"); err != nil {
		return in, err
	}
	if in.Parch, err = intFlag(cmd, "parch"); err != nil {
		return in, err
	}
	if in.Age, err = floatFlag(cmd, "age"); err != nil {
		return in, err
	}
	if in.Fare, err = floatFlag(cmd, "fare"); err != nil {
		return in, err
	}
	in.Sex = stringFlag(cmd, "sex")
	in.Embarked = stringFlag(cmd, "embarked")
	return in, nil
}

func intFlag(cmd *cli.Command, name string) (*int, error) {
	v := cmd.String(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("--%s must be an integer: %w", name, err)
	}
	return &n, nil
}

func floatFlag(cmd *cli.Command, name string) (*float64, error) {
	v := cmd.String(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("--%s must be a number: %w", name, err)
	}
	return &f, nil
}

func stringFlag(cmd *cli.Command, name string) *string {
	v := cmd.String(name)
	if v == "" {
		return nil
	}
	return &v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
