package helpers

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/mmrl-go/internal/app"
	"github.com/doeshing/mmrl-go/internal/domain"
	configinfra "github.com/doeshing/mmrl-go/internal/infrastructure/config"
)

// GetConfigLoader extracts the config loader from container with error handling
func GetConfigLoader(container *app.Container) (*configinfra.FileLoader, error) {
	if container == nil || container.ConfigLoader == nil {
		return nil, fmt.Errorf("config loader unavailable")
	}
	return container.ConfigLoader, nil
}

// ConfigAsMap renders the configuration as the generic YAML tree.
func ConfigAsMap(cfg domain.Config) (map[string]interface{}, error) {
	data, err := configinfra.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	tree := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// LookupConfigValue resolves a dotted key path such as "webui.domain".
func LookupConfigValue(cfg domain.Config, key string) (interface{}, error) {
	tree, err := ConfigAsMap(cfg)
	if err != nil {
		return nil, err
	}
	value, ok := TraverseNestedMap(tree, strings.Split(key, "."))
	if !ok {
		return nil, fmt.Errorf("unknown configuration key %q", key)
	}
	return value, nil
}

// TraverseNestedMap retrieves a value from a nested map using a key path
// Returns the value and true if found, nil and false otherwise
func TraverseNestedMap(data interface{}, keyPath []string) (interface{}, bool) {
	if len(keyPath) == 0 {
		return data, true
	}

	switch node := data.(type) {
	case map[string]interface{}:
		next, exists := node[keyPath[0]]
		if !exists {
			return nil, false
		}
		return TraverseNestedMap(next, keyPath[1:])
	default:
		return nil, false
	}
}
