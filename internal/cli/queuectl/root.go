package queuectl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "ENROLL"

type cli struct {
	v        *viper.Viper
	open     Opener
	settings Settings
}

// NewRootCommand builds queuectl. open is called lazily by commands that
// need the database.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = OpenEnv
	}
	c := &cli{v: viper.New(), open: open}

	root := &cobra.Command{
		Use:           "queuectl",
		Short:         "Inspect and operate the payment webhook queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("postgres-dsn", "", "Postgres DSN (env ENROLL_POSTGRES_DSN, falls back to POSTGRES_*)")
	pf.String("redis-addr", "", "Redis address for the shared pause flag (env ENROLL_REDIS_ADDR)")
	pf.String("redis-prefix", "enroll", "Redis key prefix (env ENROLL_REDIS_PREFIX)")
	pf.String("admin-secret", "", "Admin JWT signing secret (env ENROLL_ADMIN_JWT_SECRET)")
	pf.Bool("json", false, "Print JSON instead of text")

	root.AddCommand(
		c.statsCmd(),
		c.failedCmd(),
		c.retryCmd(),
		c.pauseCmd(true),
		c.pauseCmd(false),
		c.cleanupCmd(),
		c.healthCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	_ = c.v.BindEnv("admin-secret", envPrefix+"_ADMIN_JWT_SECRET")
	c.settings = Settings{
		PostgresDSN: c.v.GetString("postgres-dsn"),
		RedisAddr:   c.v.GetString("redis-addr"),
		RedisPrefix: c.v.GetString("redis-prefix"),
		AdminSecret: c.v.GetString("admin-secret"),
		JSON:        c.v.GetBool("json"),
	}
	return nil
}

func (c *cli) withEnv(ctx context.Context, fn func(env *Env) error) error {
	env, err := c.open(ctx, c.settings)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if env.Close != nil {
			_ = env.Close()
		}
	}()
	return fn(env)
}

func (c *cli) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
