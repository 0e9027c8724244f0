package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind             string
	inferenceTimeout time.Duration
	inferenceWorkers int
	mediaDir         string
	port             int
	prefix           string
	profile          bool
	sessionTimeout   time.Duration
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool
	videos           string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.inferenceWorkers < 1 {
		return fmt.Errorf("invalid inference worker count (must be at least 1): %d", c.inferenceWorkers)
	}
	if c.inferenceTimeout <= 0 {
		return fmt.Errorf("invalid inference timeout: %s", c.inferenceTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("KRACKLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "krackle...",
		Short:         "Backend for a webcam party game: last one to keep a straight face wins.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: KRACKLE_BIND)")
	fs.DurationVar(&cfg.inferenceTimeout, "inference-timeout", 5*time.Second, "time before an in-flight classification is abandoned (env: KRACKLE_INFERENCE_TIMEOUT)")
	fs.IntVar(&cfg.inferenceWorkers, "inference-workers", 4, "maximum concurrent classifier invocations (env: KRACKLE_INFERENCE_WORKERS)")
	fs.StringVar(&cfg.mediaDir, "media-dir", "media", "directory for player profile images (env: KRACKLE_MEDIA_DIR)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: KRACKLE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: KRACKLE_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: KRACKLE_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle lobbies are disbanded (env: KRACKLE_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: KRACKLE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: KRACKLE_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: KRACKLE_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: KRACKLE_VERSION)")
	fs.StringVar(&cfg.videos, "videos", "", "file containing round video urls, one per line (env: KRACKLE_VIDEOS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("krackle v{{.Version}}\n")

	cmd.SilenceUsage = true

	return cmd
}
