package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/d3vgru/easy-peasy-bot/recap"
)

// aliasFile is the YAML layout of ALIAS_FILE:
//
//	aliases:
//	  artax: John
//	  cohaagen: Ed
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliases reads the alias table from a YAML file.
func LoadAliases(path string) (recap.Aliases, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	out := make(recap.Aliases, len(f.Aliases))
	for k, v := range f.Aliases {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// ParseAliases parses the inline form "user=Name,other=Name".
func ParseAliases(v string) (recap.Aliases, error) {
	out := recap.Aliases{}
	for _, pair := range splitList(v) {
		user, name, ok := strings.Cut(pair, "=")
		user, name = strings.TrimSpace(user), strings.TrimSpace(name)
		if !ok || user == "" || name == "" {
			return nil, fmt.Errorf("invalid ALIASES entry %q (want user=Name)", pair)
		}
		out[user] = name
	}
	return out, nil
}
