package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmgilman/go/imgex"
)

func (a *app) filesystemCmd() *cobra.Command {
	var (
		output   string
		compress bool
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "filesystem <image-reference>",
		Short: "Export the flattened image filesystem as a tar archive",
		Long: `Export the filesystem of an image as a single tar archive, equivalent to
what "docker export" produces for a freshly created container.

Layers are downloaded in parallel, verified against their digests, and merged
bottom to top. Without --output the archive is written to stdout. Outputs of
the form s3://bucket/key are uploaded to the endpoint given by --s3-endpoint.

Examples:
  imgex filesystem alpine:latest > alpine.tar
  imgex filesystem --output nginx.tar --compress nginx:alpine
  imgex filesystem -o s3://exports/ubuntu.tar --s3-endpoint minio:9000 ubuntu:24.04
  imgex filesystem ubuntu:latest | tar -tv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := args[0]
			cred, err := a.credential()
			if err != nil {
				return err
			}

			opts := imgex.ExportOptions{Compress: compress}
			if progress {
				opts.Reporter = imgex.ReporterFunc(func(e imgex.Event) {
					fmt.Fprintf(a.stderr, "[%d/%d] %s\n", e.Current, e.Total, e.Description)
				})
			}

			if output == "" || output == "-" {
				exp, err := a.exporter()
				if err != nil {
					return err
				}
				_, err = exp.ExportFilesystemToWriter(cmd.Context(), ref, cred, cmd.OutOrStdout(), opts)
				return err
			}

			var (
				extra       []imgex.Option
				destination = output
				bucket      string
			)
			if strings.HasPrefix(output, "s3://") {
				store, b, key, err := a.objectStore(output)
				if err != nil {
					return err
				}
				extra = append(extra, imgex.WithDestinationFS(store))
				destination, bucket = key, b
			}

			exp, err := a.exporter(extra...)
			if err != nil {
				return err
			}
			path, err := exp.ExportFilesystemWithOptions(cmd.Context(), ref, cred, destination, opts)
			if err != nil {
				return err
			}
			if bucket != "" {
				path = "s3://" + bucket + "/" + path
			}
			fmt.Fprintf(a.stderr, "Filesystem exported to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, s3://bucket/key, or - for stdout")
	cmd.Flags().BoolVar(&compress, "compress", false, "gzip the archive (appends .gz to file outputs)")
	cmd.Flags().BoolVar(&progress, "progress", false, "report progress on stderr")
	return cmd
}
