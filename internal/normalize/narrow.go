package normalize

import "golang.org/x/text/width"

// NarrowHook folds halfwidth/fullwidth forms to their narrow equivalents so
// that Asian wide-character input hashes identically to its ASCII spelling.
// This replaces the standalone toNarrow filter binary the export tooling used
// to shell out to; running in-process means the hook is always available.
//
// See https://en.wikipedia.org/wiki/Halfwidth_and_fullwidth_forms
func NarrowHook(s string) string { return width.Narrow.String(s) }
