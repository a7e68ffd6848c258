package main

import (
	"fmt"
	"strings"

	"github.com/npezzotti/go-santa/internal/config"
	"github.com/npezzotti/go-santa/internal/draw"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type flags struct {
	addr            string
	dsn             string
	allowedOrigins  []string
	publicURL       string
	allowRedraw     bool
	retainResults   bool
	maxDrawAttempts int
	ownerFirst      bool
	verbose         bool
	logFormat       string
}

func (f *flags) config() (*config.Config, error) {
	return config.NewConfig(f.addr, f.dsn, f.allowedOrigins,
		config.WithPublicURL(f.publicURL),
		config.WithDrawPolicy(config.DrawPolicy{
			AllowRedraw:   f.allowRedraw,
			RetainResults: f.retainResults,
			MaxAttempts:   f.maxDrawAttempts,
		}),
		config.WithOwnerFirst(f.ownerFirst),
		config.WithLogging(f.verbose, f.logFormat),
	)
}

func newCmd() *cobra.Command {
	f := &flags{}

	v := viper.New()
	v.SetEnvPrefix("SANTA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "santa",
		Short:         "Gift-exchange rooms with a randomized draw and live updates.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&f.addr, "addr", "a", "localhost:8000", "server address (env: SANTA_ADDR)")
	fs.StringVar(&f.dsn, "dsn", "host=localhost user=postgres password=postgres dbname=santa sslmode=disable",
		`database connection string, or "memory" for an in-process store (env: SANTA_DSN)`)
	fs.StringSliceVar(&f.allowedOrigins, "allowed-origins", nil, "comma-separated list of allowed origins for CORS (env: SANTA_ALLOWED_ORIGINS)")
	fs.StringVar(&f.publicURL, "public-url", "", "base URL used in invite links, defaults to http://<addr> (env: SANTA_PUBLIC_URL)")
	fs.BoolVar(&f.allowRedraw, "allow-redraw", false, "let room owners run the draw again (env: SANTA_ALLOW_REDRAW)")
	fs.BoolVar(&f.retainResults, "retain-results", true, "keep draw results after their room is deleted (env: SANTA_RETAIN_RESULTS)")
	fs.IntVar(&f.maxDrawAttempts, "max-draw-attempts", draw.DefaultMaxAttempts, "shuffles tried before a draw fails (env: SANTA_MAX_DRAW_ATTEMPTS)")
	fs.BoolVar(&f.ownerFirst, "owner-first", false, "list the room owner first instead of the viewer (env: SANTA_OWNER_FIRST)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log debug output (env: SANTA_VERBOSE)")
	fs.StringVar(&f.logFormat, "log-format", config.LogFormatText, "log format, text or json (env: SANTA_LOG_FORMAT)")

	fs.VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
		_ = v.BindEnv(fl.Name)
		if fl.Changed || !v.IsSet(fl.Name) {
			return
		}
		if fl.Value.Type() == "stringSlice" {
			_ = fs.Set(fl.Name, strings.Join(v.GetStringSlice(fl.Name), ","))
			return
		}
		_ = fs.Set(fl.Name, fmt.Sprintf("%v", v.Get(fl.Name)))
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("santa v{{.Version}}\n")

	return cmd
}
