// Package config defines the format-agnostic workflow model. Loaders for
// concrete description formats (HCL, YAML) translate their schemas into
// these structures; everything downstream of loading consumes only this
// model and never a format-specific AST.
package config
