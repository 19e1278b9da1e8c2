package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/vitebski/csv-table-loader/pkg/models"
	"gopkg.in/yaml.v3"
)

// DefaultRequiredKeys are the profile keys needed to open a connection
var DefaultRequiredKeys = []string{"host", "port", "user", "password", "database"}

// DefaultSSLMode is used for postgres profiles that do not set sslmode
const DefaultSSLMode = "prefer"

// LoadServerProfile reads the YAML config file at path and returns the named profile.
// Every key in requiredKeys must be present and non-empty.
func LoadServerProfile(path, profile string, requiredKeys []string) (*models.ServerProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.NewConfigError("config file %s not found", path)
		}
		return nil, models.NewConfigError("read config file %s: %w", path, err)
	}

	var profiles map[string]yaml.Node
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, models.NewConfigError("error parsing the YAML file %s: %w", path, err)
	}

	node, ok := profiles[profile]
	if !ok {
		return nil, models.NewConfigError("key %q not found in the configuration", profile)
	}
	if node.Kind != yaml.MappingNode {
		return nil, models.NewConfigError("profile %q is not a mapping", profile)
	}

	params, err := scalarParams(&node)
	if err != nil {
		return nil, models.NewConfigError("profile %q: %w", profile, err)
	}

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(params[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, models.NewConfigError("profile %q: missing required keys: %s", profile, strings.Join(missing, ", "))
	}

	server := &models.ServerProfile{
		Name:     profile,
		Driver:   strings.ToLower(params["driver"]),
		Host:     params["host"],
		Port:     params["port"],
		User:     params["user"],
		Password: params["password"],
		Database: params["database"],
		SSLMode:  params["sslmode"],
	}

	if server.Driver == "" {
		server.Driver = models.DriverPostgres
	}
	if server.Driver != models.DriverPostgres && server.Driver != models.DriverMySQL {
		return nil, models.NewConfigError("profile %q: unsupported driver %q", profile, server.Driver)
	}
	if server.Port != "" {
		if _, err := strconv.Atoi(server.Port); err != nil {
			return nil, models.NewConfigError("profile %q: invalid port number: %s", profile, server.Port)
		}
	}
	if server.Driver == models.DriverPostgres && server.SSLMode == "" {
		server.SSLMode = DefaultSSLMode
	}

	return server, nil
}

// envReference matches ${NAME}; a bare $ is kept as written
var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references in a parsed value with the environment variable
func expandEnv(value string) string {
	return envReference.ReplaceAllStringFunc(value, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// scalarParams flattens a profile mapping into string values.
// Ports may be written as numbers or strings, so everything is kept as text.
func scalarParams(node *yaml.Node) (map[string]string, error) {
	params := make(map[string]string, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch value.Kind {
		case yaml.ScalarNode:
			if value.Tag == "!!null" {
				params[key.Value] = ""
			} else {
				params[key.Value] = expandEnv(value.Value)
			}
		default:
			return nil, fmt.Errorf("key %q must be a scalar value", key.Value)
		}
	}
	return params, nil
}
