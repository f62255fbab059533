// Command libimgex builds the C shared library:
//
//	go build -buildmode=c-shared -o libimgex.so ./cmd/libimgex
//
// Every entry point runs as an independent job. Failures set a last error
// that is local to the calling OS thread.
package main

import (
	"context"
	"sync"

	"github.com/jmgilman/go/imgex"
)

var defaultExporter = sync.OnceValues(func() (*imgex.Exporter, error) {
	return imgex.New()
})

func configJSON(ctx context.Context, ref, authJSON string) ([]byte, error) {
	exp, err := defaultExporter()
	if err != nil {
		return nil, err
	}
	cred, err := imgex.ParseCredentials([]byte(authJSON))
	if err != nil {
		return nil, err
	}
	return exp.GetImageConfig(ctx, ref, cred)
}

func exportFile(ctx context.Context, ref, output, authJSON string, opts imgex.ExportOptions) (string, error) {
	exp, err := defaultExporter()
	if err != nil {
		return "", err
	}
	cred, err := imgex.ParseCredentials([]byte(authJSON))
	if err != nil {
		return "", err
	}
	return exp.ExportFilesystemWithOptions(ctx, ref, cred, output, opts)
}

func main() {}
