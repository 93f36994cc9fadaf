// Package config loads analysis settings from an optional YAML file,
// SARGCHECK_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
	"sarg-check/internal/logger"
	"sarg-check/internal/model"
)

// EnvPrefix is the environment variable prefix, e.g. SARGCHECK_DIALECT.
const EnvPrefix = "SARGCHECK"

// keyDelim replaces viper's "." so that "table.column" map keys survive.
const keyDelim = "::"

// Config is the resolved tool configuration.
type Config struct {
	Dialect string   `mapstructure:"dialect"`
	Rules   []string `mapstructure:"rules"`
	// FunctionPurity maps function names to immutable, stable or volatile.
	FunctionPurity map[string]string `mapstructure:"function_purity"`
	// DomainValues lists the complete value set of "column" or "table.column".
	DomainValues map[string][]string `mapstructure:"domain_values"`
	// DerivedColumns maps a derived column to the SQL expression it stores.
	DerivedColumns  map[string]string `mapstructure:"derived_columns"`
	DerivedPatterns []string          `mapstructure:"derived_patterns"`
	Workers         int               `mapstructure:"workers"`
	Log             logger.Config     `mapstructure:"log"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"dialect":    "dialect",
	"rules":      "rules",
	"workers":    "workers",
	"log-level":  "log" + keyDelim + "level",
	"log-format": "log" + keyDelim + "format",
}

// Load reads the config file at path (optional when empty), the environment
// and any flags in fs that were set.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelim))
	v.SetDefault("dialect", string(catalog.Postgres))
	v.SetDefault("workers", 10)
	v.SetDefault("rules", []string{})
	v.SetDefault("log"+keyDelim+"level", "info")
	v.SetDefault("log"+keyDelim+"format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelim, "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Options converts the config into analysis options. parse turns derived
// column expressions into trees.
func (c *Config) Options(parse catalog.ExprParser) (model.Options, error) {
	var opts model.Options

	dialect, err := catalog.ParseDialect(c.Dialect)
	if err != nil {
		return opts, err
	}
	opts.Dialect = dialect

	for _, r := range c.Rules {
		for _, part := range strings.Split(r, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := model.ParseRuleID(part)
			if err != nil {
				return opts, err
			}
			opts.EnabledRules = append(opts.EnabledRules, id)
		}
	}

	if len(c.FunctionPurity) > 0 {
		opts.FunctionPurity = make(map[string]model.Purity, len(c.FunctionPurity))
		for fn, p := range c.FunctionPurity {
			purity, err := model.ParsePurity(strings.ToLower(p))
			if err != nil {
				return opts, fmt.Errorf("function %s: %w", fn, err)
			}
			opts.FunctionPurity[expr.Fold(fn)] = purity
		}
	}

	if len(c.DomainValues) > 0 {
		opts.DomainValues = make(map[string][]string, len(c.DomainValues))
		for col, values := range c.DomainValues {
			opts.DomainValues[expr.Fold(col)] = values
		}
	}

	if len(c.DerivedColumns) > 0 {
		if parse == nil {
			return opts, errors.New("derived columns need an expression parser")
		}
		opts.DerivedColumns = make(map[string]expr.Node, len(c.DerivedColumns))
		for col, text := range c.DerivedColumns {
			n, err := parse(text)
			if err != nil {
				return opts, fmt.Errorf("derived column %s: %w", col, err)
			}
			opts.DerivedColumns[expr.Fold(col)] = n
		}
	}

	opts.DerivedPatterns = c.DerivedPatterns
	if len(opts.DerivedPatterns) == 0 {
		opts.DerivedPatterns = model.DefaultDerivedPatterns
	}
	return opts, nil
}
