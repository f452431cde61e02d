package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/magiconair/properties"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/izoe/variant-signer/internal/application"
	"github.com/izoe/variant-signer/internal/config"
	"github.com/izoe/variant-signer/internal/manifest"
	"github.com/izoe/variant-signer/internal/variant"
)

const (
	formatYAML   = "yaml"
	formatJSON   = "json"
	formatGradle = "gradle-properties"
)

// Property names understood by the Android Gradle Plugin for injected signing.
const (
	injectedStoreFile     = "android.injected.signing.store.file"
	injectedStorePassword = "android.injected.signing.store.password"
	injectedKeyAlias      = "android.injected.signing.key.alias"
	injectedKeyPassword   = "android.injected.signing.key.password"
)

type resolveCmd struct {
	cmd       *kingpin.CmdClause
	flavor    *string
	buildType *string
	format    *string
}

func (r *resolveCmd) register(app *kingpin.Application) {
	r.cmd = app.Command("resolve", "Resolve one build variant and print it")
	r.flavor = r.cmd.Flag("flavor", "Product flavor (dev, prelive, prod)").Required().String()
	r.buildType = r.cmd.Flag("build-type", "Build type (debug, release)").Default(string(variant.BuildTypeRelease)).String()
	r.format = r.cmd.Flag("format", "Output format; gradle-properties prints the credential secrets").
		Default(formatYAML).Enum(formatYAML, formatJSON, formatGradle)
}

func (r *resolveCmd) run(e env) error {
	planner, _, err := application.NewPlanner(e.cfg, e.logger)
	if err != nil {
		return err
	}

	v, err := planner.Variant(*r.flavor, variant.BuildType(*r.buildType))
	if err != nil {
		return err
	}

	if *r.format == formatGradle {
		e.logger.Debug("writing injected signing properties", zap.String("variant", v.Name))
		return writeInjectedSigning(e.stdout, v)
	}
	return encode(e.stdout, *r.format, v)
}

// writeInjectedSigning prints the credential as Android Gradle Plugin injected
// signing properties.
func writeInjectedSigning(w io.Writer, v variant.Variant) error {
	p := properties.NewProperties()
	p.DisableExpansion = true
	entries := [][2]string{
		{injectedStoreFile, v.Credential.StoreFile},
		{injectedStorePassword, v.Credential.StorePassword.Reveal()},
		{injectedKeyAlias, v.Credential.KeyAlias},
		{injectedKeyPassword, v.Credential.KeyPassword.Reveal()},
	}
	for _, kv := range entries {
		if _, _, err := p.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("set %s: %w", kv[0], err)
		}
	}
	if _, err := p.Write(w, properties.UTF8); err != nil {
		return fmt.Errorf("write properties: %w", err)
	}
	return nil
}

type variantsCmd struct {
	cmd    *kingpin.CmdClause
	format *string
}

func (c *variantsCmd) register(app *kingpin.Application) {
	c.cmd = app.Command("variants", "Resolve every build variant and print a secret-free summary")
	c.format = c.cmd.Flag("format", "Output format").Default(formatYAML).Enum(formatYAML, formatJSON)
}

func (c *variantsCmd) run(e env) error {
	m, err := buildManifest(e)
	if err != nil {
		return err
	}
	return encode(e.stdout, *c.format, m)
}

type manifestCmd struct {
	cmd     *kingpin.CmdClause
	out     *string
	signKey *string
}

func (c *manifestCmd) register(app *kingpin.Application) {
	c.cmd = app.Command("manifest", "Write a signing manifest and, with a key, its detached OpenPGP signature")
	c.out = c.cmd.Flag("out", "Manifest output path").Default(filepath.Join("build", "signing-manifest.yaml")).String()
	c.signKey = c.cmd.Flag("sign-key", "Armored or binary OpenPGP private key used to sign the manifest").String()
}

func (c *manifestCmd) run(e env) error {
	m, err := buildManifest(e)
	if err != nil {
		return err
	}

	keyPath := e.cfg.Manifest.SigningKey
	if *c.signKey != "" {
		keyPath = *c.signKey
	}

	var signer *manifest.Signer
	if keyPath != "" {
		passphrase := []byte(os.Getenv(e.cfg.Manifest.PassphraseEnv))
		signer, err = manifest.LoadSigner(keyPath, passphrase)
		if err != nil {
			return fmt.Errorf("load manifest signing key: %w", err)
		}
	}

	sigPath, err := manifest.WriteFiles(m, *c.out, signer)
	if err != nil {
		return err
	}

	fields := []zap.Field{zap.String("manifest", *c.out), zap.Int("variants", len(m.Variants))}
	if signer != nil {
		fields = append(fields, zap.String("signature", sigPath), zap.String("key_fingerprint", signer.Fingerprint()))
	}
	e.logger.Info("signing manifest written", fields...)
	return nil
}

type verifyManifestCmd struct {
	cmd       *kingpin.CmdClause
	manifest  *string
	signature *string
	keyring   *string
}

func (c *verifyManifestCmd) register(app *kingpin.Application) {
	c.cmd = app.Command("verify-manifest", "Verify a signing manifest against its detached signature")
	c.manifest = c.cmd.Flag("manifest", "Manifest path").Default(filepath.Join("build", "signing-manifest.yaml")).String()
	c.signature = c.cmd.Flag("signature", "Signature path (defaults to the manifest path plus .asc)").String()
	c.keyring = c.cmd.Flag("keyring", "Public key file used for verification").String()
}

func (c *verifyManifestCmd) run(e env) error {
	keyring := e.cfg.Manifest.Keyring
	if *c.keyring != "" {
		keyring = *c.keyring
	}
	if keyring == "" {
		return fmt.Errorf("a keyring is required: pass --keyring or set manifest.keyring")
	}

	sigPath := *c.signature
	if sigPath == "" {
		sigPath = *c.manifest + manifest.SignatureSuffix
	}

	m, signer, err := manifest.VerifyFiles(keyring, *c.manifest, sigPath)
	if err != nil {
		return err
	}

	e.logger.Info("signing manifest verified",
		zap.String("manifest", *c.manifest),
		zap.String("key_fingerprint", fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint)),
		zap.Int("variants", len(m.Variants)),
	)
	_, err = fmt.Fprintf(e.stdout, "OK %d variants signed by %X\n", len(m.Variants), signer.PrimaryKey.Fingerprint)
	return err
}

type serveCmd struct {
	cmd            *kingpin.CmdClause
	port           *string
	rateLimitRPS   *float64
	rateLimitBurst *int
}

func (c *serveCmd) register(app *kingpin.Application) {
	c.cmd = app.Command("serve", "Serve resolved variants over HTTP")
	c.port = c.cmd.Flag("port", "HTTP port exposed by the service").String()
	c.rateLimitRPS = c.cmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	c.rateLimitBurst = c.cmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
}

func (c *serveCmd) run(cl *cli) error {
	tweak := func(o *config.CLIOverrides) {
		o.Port = c.port
		o.RateLimitRPS = c.rateLimitRPS
		o.RateLimitBurst = c.rateLimitBurst
	}

	return withEnv(cl, tweak, func(e env) error {
		app, err := application.New(e.cfg, e.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		if err := app.Start(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		shutdown(app.Server(), e.cfg.ShutdownGracePeriod, e.logger)
		return nil
	})
}

func buildManifest(e env) (manifest.Manifest, error) {
	planner, resolver, err := application.NewPlanner(e.cfg, e.logger)
	if err != nil {
		return manifest.Manifest{}, err
	}
	variants, err := planner.Plan()
	if err != nil {
		return manifest.Manifest{}, err
	}
	return manifest.Build(e.cfg.Catalog.App, variants, resolver.Root(), time.Now())
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}
