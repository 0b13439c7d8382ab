// Package assets owns the public files served ahead of the router.
//
// A [Manager] holds the active [Snapshot] behind an atomic pointer, so the
// static stage reads it without locking while a [Watcher] swaps in new
// bundles. Snapshots come from the embedded seed, a local directory, or a
// tar.gz bundle in S3 whose sha256 is published in an SSM parameter
// ([Loader]). Bundles may additionally carry a detached KMS signature.
//
// Extraction is bounded: compressed size, per-file size and total size are
// capped, and entries that are absolute, contain "..", or are not regular
// files or directories reject the whole bundle.
package assets
