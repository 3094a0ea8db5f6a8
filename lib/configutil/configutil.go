package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// ReadConfig merges configuration into *out, where `name` is a json5 file
// path with extension. Layers, lowest priority first:
//  1. the existing contents of *out (caller-provided defaults)
//  2. <name>.<ext>
//  3. <name>.local.<ext>
//  4. environment variables declared via `env:` struct tags
//
// Missing files are not an error; defaults plus env still apply.
func ReadConfig[T any](name string, out *T) error {
	dirname := filepath.Dir(name)
	basename := filepath.Base(name)
	prefixname, ext := splitExt(basename)

	layers := []string{
		name,
		filepath.Join(dirname, fmt.Sprintf("%s.local.%s", prefixname, ext)),
	}
	for _, path := range layers {
		contents, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		var override T
		err = json5.Unmarshal(contents, &override)
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		err = mergo.Merge(out, override, mergo.WithOverride)
		if err != nil {
			return err
		}
		slog.Info("merged config layer", "path", path)
	}

	return env.Parse(out)
}
