// Package main provides the entry point for the sbdl CLI.
//
// sbdl crawls the Realm of Darkness soundboard site and downloads every
// sound of every soundboard it finds. Files that already exist are never
// downloaded again, so an interrupted run resumes where it stopped.
//
// Usage:
//
//	sbdl crawl
//	sbdl scrape <soundboard-url>...
//
// See --help for all available options.
package main

func main() {
	Execute()
}
