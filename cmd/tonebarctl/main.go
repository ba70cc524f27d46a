package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tonebar/internal/storage"
	"tonebar/pkg/tonebar"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "tonebar.db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand shares: the merged configuration, the
// logger and the output streams.
type app struct {
	v          *viper.Viper
	log        *logrus.Logger
	out        io.Writer
	errOut     io.Writer
	configFile string
	envFile    string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		log:    logrus.New(),
		out:    out,
		errOut: errOut,
	}

	root := &cobra.Command{
		Use:           "tonebarctl",
		Short:         "Tune percussion bars: modal frequencies, blank lengths and undercut optimization",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			if err := a.bindFlags(cmd, rootKeys); err != nil {
				return err
			}
			return a.setupLogger()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: tonebar.yaml in . or $HOME/.config/tonebar)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	flags.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite|postgres")
	flags.String("dsn", "", "sqlite database path or postgres connection string")
	flags.String("artifacts-dir", defaultArtifactsDir, "directory for run artifacts")
	flags.String("exports-dir", defaultExportsDir, "directory for exported runs")
	flags.String("log-level", "info", "log level: debug|info|warn|error")

	root.AddCommand(
		newMaterialsCmd(a),
		newFreqsCmd(a),
		newLengthCmd(a),
		newLengthsCmd(a),
		newOptimizeCmd(a),
		newRunsCmd(a),
		newExportCmd(a),
	)
	return root
}

var rootKeys = map[string]string{
	"store":         "store",
	"dsn":           "dsn",
	"artifacts_dir": "artifacts-dir",
	"exports_dir":   "exports-dir",
	"log_level":     "log-level",
}

// loadConfig layers .env, the config file and TONEBAR_* variables. Flags
// bound afterwards take precedence over all three.
func (a *app) loadConfig() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	a.v.SetEnvPrefix("TONEBAR")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
	} else {
		a.v.SetConfigName("tonebar")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		a.v.AddConfigPath("$HOME/.config/tonebar")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// bindFlags maps config keys onto the flags of the command being executed.
// Binding happens per invocation so commands sharing a key never steal each
// other's flag.
func (a *app) bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for _, key := range sortedKeys(keys) {
		name := keys[key]
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag --%s is not defined on %s", name, cmd.Name())
		}
		if err := a.v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) setupLogger() error {
	a.log.SetOutput(a.errOut)
	a.log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	level, err := logrus.ParseLevel(a.v.GetString("log_level"))
	if err != nil {
		return err
	}
	a.log.SetLevel(level)
	return nil
}

func (a *app) client() (*tonebar.Client, error) {
	kind := a.v.GetString("store")
	dsn := a.v.GetString("dsn")
	if dsn == "" && kind == "sqlite" {
		dsn = defaultDBPath
	}
	return tonebar.New(tonebar.Options{
		StoreKind:    kind,
		DSN:          dsn,
		ArtifactsDir: a.v.GetString("artifacts_dir"),
		ExportsDir:   a.v.GetString("exports_dir"),
		Logger:       a.log,
	})
}

// withClient opens a client for the duration of fn.
func (a *app) withClient(ctx context.Context, fn func(*tonebar.Client) error) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}
	return fn(client)
}
