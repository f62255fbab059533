// Package registry fetches image manifests and blobs from OCI distribution
// registries using oras-go.
//
// A Client serves exactly one export job. It owns the job's token cache and
// credential memo, so nothing obtained while talking to a registry outlives
// the job.
//
// Every fetch is retried with bounded exponential backoff when the failure is
// transient. An authentication failure causes the job's credentials to be
// resolved again once before it is reported. Every blob is verified against
// its descriptor digest before it is handed on.
package registry
