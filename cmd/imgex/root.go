package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmgilman/go/imgex"
	"github.com/jmgilman/go/imgex/errors"
	"github.com/jmgilman/go/imgex/fs/minio"
)

// envPrefix prefixes the environment variables backing every flag, e.g.
// IMGEX_USERNAME for --username.
const envPrefix = "IMGEX"

type app struct {
	root   *cobra.Command
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	a.root = &cobra.Command{
		Use:     "imgex",
		Short:   imgex.Description,
		Version: imgex.Version,
		Long: `imgex reads image configurations and exports image filesystems directly
from OCI and Docker registries, without a running container daemon.

Every flag can also be set through an IMGEX_ environment variable, for
example IMGEX_USERNAME or IMGEX_PLAIN_HTTP.

Examples:
  imgex config nginx:latest
  imgex filesystem alpine:latest > alpine.tar
  imgex filesystem --output nginx.tar --compress nginx:alpine
  imgex -u user -p pass config registry.example.com/team/app:1.0`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)

	flags := a.root.PersistentFlags()
	flags.StringP("username", "u", "", "registry username")
	flags.StringP("password", "p", "", "registry password")
	flags.String("token", "", "registry bearer token")
	flags.StringP("registry", "r", "", "registry host the credentials apply to (default: all)")
	flags.String("auth-json", "", `credential payload, e.g. {"token":"..."}; prefix with @ to read a file`)
	flags.String("platform", "", "platform to select from multi-platform images (os/arch[/variant])")
	flags.Bool("plain-http", false, "use http instead of https")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.Bool("no-default-credentials", false, "never read the Docker credential store")
	flags.Int("concurrency", imgex.DefaultOptions().Concurrency, "layers downloaded at once")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("json", false, "print errors as JSON")
	flags.String("s3-endpoint", "", "S3-compatible endpoint for s3:// outputs")
	flags.String("s3-access-key", "", "access key for s3:// outputs")
	flags.String("s3-secret-key", "", "secret key for s3:// outputs")
	flags.Bool("s3-ssl", true, "use https for the S3 endpoint")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	// Binding only fails for a nil flag set.
	_ = a.v.BindPFlags(flags)

	a.root.AddCommand(a.configCmd(), a.filesystemCmd(), a.versionCmd())
	return a
}

// execute runs the command line and returns the process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	a.root.SetArgs(args)
	if err := a.root.ExecuteContext(ctx); err != nil {
		a.printError(err)
		return 1
	}
	return 0
}

func (a *app) setup(_ *cobra.Command, _ []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.v.GetString("log-level"))); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidConfig, "invalid log level %q", a.v.GetString("log-level"))
	}
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

func (a *app) printError(err error) {
	if a.v.GetBool("json") {
		enc := json.NewEncoder(a.stderr)
		if jerr := enc.Encode(errors.ToJSON(err)); jerr == nil {
			return
		}
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
}

// credential builds the call credential from --auth-json or the individual
// credential flags.
func (a *app) credential() (imgex.Credential, error) {
	if payload := a.v.GetString("auth-json"); payload != "" {
		if path, ok := strings.CutPrefix(payload, "@"); ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return imgex.Credential{}, errors.Wrapf(err, errors.CodeInvalidCredentialFormat,
					"failed to read credential file %s", path)
			}
			payload = string(data)
		}
		return imgex.ParseCredentials([]byte(payload))
	}

	var (
		username = a.v.GetString("username")
		password = a.v.GetString("password")
		token    = a.v.GetString("token")
		cred     imgex.Credential
	)
	switch {
	case token != "" && (username != "" || password != ""):
		return cred, errors.New(errors.CodeInvalidCredentialFormat, "--token cannot be combined with --username or --password")
	case token != "":
		cred = imgex.BearerCredential(token)
	case username != "" || password != "":
		if username == "" || password == "" {
			return cred, errors.New(errors.CodeInvalidCredentialFormat, "--username and --password must be given together")
		}
		cred = imgex.BasicCredential(username, password)
	}
	cred.Registry = a.v.GetString("registry")
	return cred, nil
}

// exporter builds an Exporter from the global flags plus extra options.
func (a *app) exporter(extra ...imgex.Option) (*imgex.Exporter, error) {
	opts := []imgex.Option{
		imgex.WithLogger(a.logger),
		imgex.WithPlatform(a.v.GetString("platform")),
		imgex.WithConcurrency(a.v.GetInt("concurrency")),
		imgex.WithUserAgent("imgex-cli/" + imgex.Version),
	}
	if a.v.GetBool("plain-http") {
		opts = append(opts, imgex.WithPlainHTTP())
	}
	if a.v.GetBool("insecure") {
		opts = append(opts, imgex.WithInsecureTLS())
	}
	if a.v.GetBool("no-default-credentials") {
		opts = append(opts, imgex.WithoutDefaultCredentials())
	}
	return imgex.New(append(opts, extra...)...)
}

// objectStore returns the S3 destination for an s3://bucket/key output
// together with the bucket and key.
func (a *app) objectStore(output string) (*minio.MinioFS, string, string, error) {
	bucket, key, err := minio.ParseObjectURL(output)
	if err != nil {
		return nil, "", "", errors.Wrap(err, errors.CodeInvalidConfig, "invalid output")
	}
	store, err := minio.NewMinIO(minio.Config{
		Endpoint:  a.v.GetString("s3-endpoint"),
		Bucket:    bucket,
		AccessKey: a.v.GetString("s3-access-key"),
		SecretKey: a.v.GetString("s3-secret-key"),
		UseSSL:    a.v.GetBool("s3-ssl"),
	})
	if err != nil {
		return nil, "", "", errors.Wrap(err, errors.CodeInvalidConfig, "invalid S3 destination")
	}
	return store, bucket, key, nil
}
