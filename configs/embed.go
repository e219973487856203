// Package configs embeds the annotated configuration template written by
// `searchkit init`.
package configs

import _ "embed"

// Template is a commented .searchkit.yaml holding the built-in defaults.
//
//go:embed searchkit.example.yaml
var Template string
