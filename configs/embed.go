// Package configs embeds the chatlens configuration templates.
//
// Templates are embedded at build time, so `chatlens config init` works
// from any distribution without the source tree.
//
// Configuration hierarchy (see internal/config Load()):
//  1. Hardcoded defaults (config.NewConfig())
//  2. User config (~/.config/chatlens/config.yaml)
//  3. Project config (.chatlens.yaml)
//  4. Environment variables (CHATLENS_*)
package configs

import _ "embed"

// UserConfigTemplate is written by `chatlens config init --user`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `chatlens config init` as
// .chatlens.yaml in the working directory.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
