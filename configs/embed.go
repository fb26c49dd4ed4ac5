// Package configs provides the embedded configuration template for conceptrank.
//
// The template is used by `conceptrank config init`, which writes it to the
// user config path (~/.config/conceptrank/config.yaml) or, with --project, to
// .conceptrank.yaml in the working directory.
package configs

import _ "embed"

// Template is the annotated example configuration.
//
//go:embed conceptrank.example.yaml
var Template string
