package main

import (
	"bytes"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jmgilman/go/imgex/errors"
)

func (a *app) configCmd() *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "config <image-reference>",
		Short: "Print the image configuration",
		Long: `Print the config JSON of an image exactly as stored in the registry.

Only the manifest and config blob are fetched; no layer data is downloaded.
With --summary a simplified view is printed instead: user, entrypoint, cmd,
working directory, environment, labels, and exposed ports.

Examples:
  imgex config nginx:latest
  imgex config --summary --platform linux/arm64 nginx:latest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := a.credential()
			if err != nil {
				return err
			}
			exp, err := a.exporter()
			if err != nil {
				return err
			}

			var out []byte
			if summary {
				cfg, err := exp.GetImageConfigSummary(cmd.Context(), args[0], cred)
				if err != nil {
					return err
				}
				if out, err = json.MarshalIndent(cfg, "", "  "); err != nil {
					return errors.Wrap(err, errors.CodeInternal, "failed to encode config summary")
				}
			} else {
				if out, err = exp.GetImageConfig(cmd.Context(), args[0], cred); err != nil {
					return err
				}
			}

			if !bytes.HasSuffix(out, []byte("\n")) {
				out = append(out, '\n')
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print a simplified view of the config")
	return cmd
}
