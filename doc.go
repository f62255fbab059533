// Package imgex exports container images without a container daemon.
//
// It talks to OCI distribution registries directly: GetImageConfig returns an
// image's config JSON, and the ExportFilesystem family flattens every layer
// of an image into a single tar archive (optionally gzip compressed), the
// way "docker export" would for a freshly created container.
//
// Basic usage:
//
//	exporter, err := imgex.New()
//	if err != nil {
//	    return err
//	}
//
//	cfg, err := exporter.GetImageConfig(ctx, "alpine:3.20", imgex.Credential{})
//	if err != nil {
//	    return err
//	}
//
//	path, err := exporter.ExportFilesystemWithOptions(ctx, "alpine:3.20", imgex.Credential{},
//	    "rootfs.tar", imgex.ExportOptions{Compress: true})
//
// Layers are fetched in parallel into a temporary spool and merged strictly
// bottom to top with overlay semantics: whiteouts and opaque directories hide
// lower content, later layers replace earlier entries, and the archive lists
// entries in ascending path order so identical inputs produce identical
// archives.
//
// Every failure is an *Error whose code (see the errors package) tells the
// failure kinds apart. Transient registry failures are retried internally;
// rejected credentials are resolved again exactly once.
package imgex
