// Package soundboard resolves a soundboard page into everything needed to
// download it: a display name for the output directory, the ordered list of
// sound identifiers from its sounds.js manifest, and the audio URL template
// the identifiers are substituted into.
package soundboard
