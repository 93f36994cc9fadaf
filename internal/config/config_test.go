package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarg-check/internal/catalog"
	"sarg-check/internal/expr"
	"sarg-check/internal/model"
)

const sample = `
dialect: mysql
rules: [R1, R5]
workers: 4
function_purity:
  RANDOM_TOKEN: volatile
domain_values:
  users.status: [active, pending, closed]
derived_columns:
  email_lower: lower(email)
log:
  level: debug
  format: json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sarg-check.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Rules)
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample), nil)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Dialect)
	assert.Equal(t, []string{"R1", "R5"}, cfg.Rules)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"active", "pending", "closed"}, cfg.DomainValues["users.status"])
	assert.Equal(t, "lower(email)", cfg.DerivedColumns["email_lower"])
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("SARGCHECK_DIALECT", "sqlserver")
	t.Setenv("SARGCHECK_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sample), nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", cfg.Dialect)
	assert.Equal(t, "warn", cfg.Log.Level)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("dialect", "postgres", "")
	fs.Int("workers", 10, "")
	require.NoError(t, fs.Parse([]string{"--dialect", "mysql"}))

	cfg, err = Load(writeConfig(t, sample), fs)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Dialect)
	assert.Equal(t, 4, cfg.Workers, "unset flags do not override the file")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample), nil)
	require.NoError(t, err)

	parse := func(text string) (expr.Node, error) {
		return expr.Call("lower", expr.Col("email")), nil
	}
	opts, err := cfg.Options(parse)
	require.NoError(t, err)

	assert.Equal(t, catalog.MySQL, opts.Dialect)
	assert.Equal(t, []model.RuleID{model.R1, model.R5}, opts.EnabledRules)
	assert.Equal(t, model.Volatile, opts.Purity("random_token"))
	vals, ok := opts.Domain(expr.TableCol("users", "status"))
	require.True(t, ok)
	assert.Len(t, vals, 3)
	src, ok := opts.Derivation(expr.Col("email_lower"))
	require.True(t, ok)
	assert.Equal(t, "LOWER(email)", expr.Format(src))
	assert.Equal(t, model.DefaultDerivedPatterns, opts.DerivedPatterns)
}

func TestConfig_OptionsErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"dialect", Config{Dialect: "oracle"}},
		{"rule", Config{Rules: []string{"R99"}}},
		{"purity", Config{FunctionPurity: map[string]string{"f": "sometimes"}}},
		{"no parser", Config{DerivedColumns: map[string]string{"a": "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Options(nil)
			assert.Error(t, err)
		})
	}
}

func TestConfig_CommaSeparatedRules(t *testing.T) {
	cfg := Config{Rules: []string{"r1, 7", "R20"}}
	opts, err := cfg.Options(nil)
	require.NoError(t, err)
	assert.Equal(t, []model.RuleID{model.R1, model.R7, model.R20}, opts.EnabledRules)
}
