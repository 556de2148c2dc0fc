package fixtures

import (
	_ "embed"
)

//go:embed config/config.yaml.template
var ConfigTemplate []byte

//go:embed config/model_backend.yaml.template
var ModelBackendTemplate []byte
