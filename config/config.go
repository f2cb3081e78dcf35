package config

import (
	_ "embed"
)

// operator config
//
//go:embed default.config.yml
var DefaultConfigYml string
