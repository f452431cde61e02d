package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/izoe/variant-signer/internal/config"
	"github.com/izoe/variant-signer/internal/logging"
)

var signalNotify = signal.Notify

// globalFlags are shared by every command.
type globalFlags struct {
	configFile  *string
	projectRoot *string
	logLevel    *string
	logFormat   *string
}

type cli struct {
	app    *kingpin.Application
	global globalFlags
	stdout io.Writer

	resolve        resolveCmd
	variants       variantsCmd
	manifest       manifestCmd
	verifyManifest verifyManifestCmd
	serve          serveCmd
}

func newCLI(stdout io.Writer) *cli {
	app := kingpin.New("variant-signer", "Resolves Android build variants and their signing credentials")
	c := &cli{
		app:    app,
		stdout: stdout,
		global: globalFlags{
			configFile:  app.Flag("config", "Path to YAML configuration file").Short('c').String(),
			projectRoot: app.Flag("project-root", "Android project root (defaults to the nearest directory with settings.gradle)").String(),
			logLevel:    app.Flag("log-level", "Log level: debug, info, warn, error").String(),
			logFormat:   app.Flag("log-format", "Log format: json or console").Enum("json", "console"),
		},
	}
	c.resolve.register(app)
	c.variants.register(app)
	c.manifest.register(app)
	c.verifyManifest.register(app)
	c.serve.register(app)
	return c
}

func main() {
	c := newCLI(os.Stdout)
	command := kingpin.MustParse(c.app.Parse(os.Args[1:]))
	c.app.FatalIfError(c.run(command), "")
}

// run dispatches an already parsed command.
func (c *cli) run(command string) error {
	switch command {
	case c.serve.cmd.FullCommand():
		return c.serve.run(c)
	case c.resolve.cmd.FullCommand():
		return withEnv(c, nil, c.resolve.run)
	case c.variants.cmd.FullCommand():
		return withEnv(c, nil, c.variants.run)
	case c.manifest.cmd.FullCommand():
		return withEnv(c, nil, c.manifest.run)
	case c.verifyManifest.cmd.FullCommand():
		return withEnv(c, nil, c.verifyManifest.run)
	}
	return nil
}

// overrides converts the global flags into config overrides.
func (c *cli) overrides() *config.CLIOverrides {
	return &config.CLIOverrides{
		ConfigFile:  *c.global.configFile,
		ProjectRoot: c.global.projectRoot,
		LogLevel:    c.global.logLevel,
		LogFormat:   c.global.logFormat,
	}
}

// env is what a command needs once configuration and logging are set up.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	stdout io.Writer
}

func withEnv(c *cli, tweak func(*config.CLIOverrides), fn func(env) error) error {
	overrides := c.overrides()
	if tweak != nil {
		tweak(overrides)
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	return fn(env{cfg: cfg, logger: logger, stdout: c.stdout})
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
