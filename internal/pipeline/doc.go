// Package pipeline runs one soundboard from URL to files on disk.
//
// A Pipeline executes Steps in order over a shared Run: resolve the page
// and manifest, reconcile against the output directory, download what is
// missing, and record the outcome in the history database. Dispatcher
// plugs the pipeline into the crawler, running it synchronously for every
// discovered soundboard. BatchProcessor runs it for explicit URLs with
// bounded concurrency using errgroup.
package pipeline
