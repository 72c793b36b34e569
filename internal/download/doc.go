// Package download makes local soundboard directories match their remote
// manifests.
//
// Reconcile decides what is missing: an artifact counts as present when a
// regular file named <identifier>.mp3 exists in the soundboard directory.
// Downloader fetches the missing identifiers, writing each one to a hidden
// temp file and renaming it into place, so an interrupted run never leaves
// a truncated .mp3 behind and the next run picks up where it stopped.
package download
