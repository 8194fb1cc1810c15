// Package prompts provides the arena stage prompt templates with
// override support.
package prompts

import "embed"

//go:embed stages/*.md
var embeddedFS embed.FS
