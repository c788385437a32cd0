package config

import (
	"fmt"
	"path/filepath"

	"rotor-api/pkg/confkit"
	"rotor-api/pkg/engine"
	"rotor-api/pkg/rotation"
)

// MustLoadRotation loads etc/rotation.yaml from the project root and panics
// on error. It isolates the rotation section so tests do not need the full
// application config.
func MustLoadRotation() *rotation.Config {
	path := filepath.Join(confkit.MustProjectRoot(), "etc", "rotation.yaml")
	cfg, err := rotation.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load rotation config %s: %w", path, err))
	}
	return cfg
}

// MustLoadEngine loads etc/engine.yaml from the project root and panics on
// error.
func MustLoadEngine() *engine.Config {
	path := filepath.Join(confkit.MustProjectRoot(), "etc", "engine.yaml")
	cfg, err := engine.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load engine config %s: %w", path, err))
	}
	return cfg
}
