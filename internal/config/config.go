// Package config loads the router's configuration from compiled-in
// defaults, an optional YAML file, and WEBORD_* environment variables,
// in increasing precedence. Keys are flat and lowercase throughout
// (defaults, YAML, and the env-var transform) so a value set in one
// layer reliably overrides the same key set in another.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/webordinary/router/internal/domain"
)

const envPrefix = "WEBORD_"

// TenantConfigRow is one entry of the operator-maintained identity →
// tenant/repo table, as it appears in the YAML config file.
type TenantConfigRow struct {
	Identity  string `koanf:"identity"`
	ProjectID string `koanf:"projectid"`
	UserID    string `koanf:"userid"`
	RepoURL   string `koanf:"repourl"`
}

// Config is the fully-resolved set of knobs the router reads at
// startup.
type Config struct {
	AWSRegion       string `koanf:"awsregion"`
	AWSAccountID    string `koanf:"awsaccountid"`
	QueueNamePrefix string `koanf:"queuenameprefix"`

	TOwner     time.Duration `koanf:"towner"`
	TOrphan    time.Duration `koanf:"torphan"`
	TOwnerHard time.Duration `koanf:"townerhard"`
	TTimeout   time.Duration `koanf:"ttimeout"`

	ReaperInterval time.Duration `koanf:"reaperinterval"`

	SQLitePath string `koanf:"sqlitepath"`
	HTTPAddr   string `koanf:"httpaddr"`
	LogLevel   string `koanf:"loglevel"`

	TenantConfig []TenantConfigRow `koanf:"tenantconfig"`
}

func defaults() map[string]any {
	return map[string]any{
		"awsregion":       "us-east-1",
		"queuenameprefix": "webordinary",
		"towner":          "5m",
		"torphan":         "24h",
		"townerhard":      "30m",
		"ttimeout":        "300s",
		"reaperinterval":  "6h",
		"sqlitepath":      "webordinary.db",
		"httpaddr":        ":8080",
		"loglevel":        "info",
	}
}

// Load builds a Config from defaults, then yamlPath if non-empty, then
// WEBORD_*-prefixed environment variables.
func Load(yamlPath string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if yamlPath != "" {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load yaml config %s: %w", yamlPath, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// TenantEntries converts the YAML tenant-config rows into domain
// entries ready for seeding the tenant_config table.
func (c Config) TenantEntries() []domain.TenantConfigEntry {
	out := make([]domain.TenantConfigEntry, 0, len(c.TenantConfig))
	for _, row := range c.TenantConfig {
		out = append(out, domain.TenantConfigEntry{
			Identity:  row.Identity,
			TenantKey: domain.TenantKey{ProjectID: row.ProjectID, UserID: row.UserID},
			RepoURL:   row.RepoURL,
		})
	}
	return out
}
