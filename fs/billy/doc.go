// Package billy provides go-billy backed implementations of core.FS.
//
// LocalFS wraps osfs and is the default export destination and layer spool.
// Relative paths given to LocalFS resolve against the process working
// directory. MemoryFS wraps memfs and is used in tests and for callers that
// want an export held entirely in memory:
//
//	mem := billy.NewMemory()
//	exporter, err := imgex.New(imgex.WithDestinationFS(mem), imgex.WithSpoolFS(mem))
//	...
//	data, err := mem.ReadFile("/out/rootfs.tar")
//
// # Thread Safety
//
// LocalFS and MemoryFS are safe for concurrent use by multiple goroutines.
// File handles are not.
package billy
