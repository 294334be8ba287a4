package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"

	"github.com/brcamerge/brcamerge/internal/cohort"
	"github.com/brcamerge/brcamerge/internal/mapping"
	"github.com/brcamerge/brcamerge/internal/normalize"
	"github.com/brcamerge/brcamerge/internal/table"
)

const (
	CurrentVersion = 1
	DefaultPath    = "brcamerge.yaml"

	DefaultIdentifierColumn = "id_paciente"
)

// Config is the top-level project configuration.
type Config struct {
	Version          int              `yaml:"version"`
	Sources          []SourceConfig   `yaml:"sources"`
	Mapping          string           `yaml:"mapping"`
	Output           OutputConfig     `yaml:"output,omitempty"`
	Matcher          MatcherConfig    `yaml:"matcher,omitempty"`
	Normalization    *normalize.Rules `yaml:"normalization,omitempty"`
	MissingTokens    []string         `yaml:"missing_tokens,omitempty"`
	IdentifierColumn string           `yaml:"identifier_column,omitempty"`
	Sinks            SinksConfig      `yaml:"sinks,omitempty"`
	Metrics          MetricsConfig    `yaml:"metrics,omitempty"`
	Logging          LogConfig        `yaml:"logging,omitempty"`

	// dir is the directory relative paths are resolved against.
	dir string
}

// SourceConfig declares one cohort.
type SourceConfig struct {
	// Tag is written to dataset_source, e.g. METABRIC.
	Tag string `yaml:"tag"`
	// Key names the source's field in the mapping file. Defaults to lower(Tag).
	Key string `yaml:"key,omitempty"`
	// Path is the cohort's raw table. With parts it is where assemble writes it.
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter,omitempty"`
	// Columns is an optional numbered column list usable by suggest without the table.
	Columns string        `yaml:"columns,omitempty"`
	Parts   []cohort.Part `yaml:"parts,omitempty"`
}

// OutputConfig names the files written under Directory.
type OutputConfig struct {
	Directory   string `yaml:"directory,omitempty"`
	Unified     string `yaml:"unified,omitempty"`
	Report      string `yaml:"report,omitempty"`
	ReportJSON  string `yaml:"report_json,omitempty"`
	Suggestions string `yaml:"suggestions,omitempty"`
	Overlap     string `yaml:"overlap,omitempty"`
	Inventory   string `yaml:"inventory,omitempty"`
	Parquet     string `yaml:"parquet,omitempty"` // empty disables parquet export
}

// MatcherConfig tunes the column matcher.
type MatcherConfig struct {
	Threshold      float64            `yaml:"threshold,omitempty"`
	Scorer         string             `yaml:"scorer,omitempty"` // levenshtein or sequence
	SkipCategories []mapping.Category `yaml:"skip_categories,omitempty"`
}

// SinksConfig lists optional destinations for the unified table.
type SinksConfig struct {
	SQLite   *SQLiteSink   `yaml:"sqlite,omitempty"`
	Postgres *PostgresSink `yaml:"postgres,omitempty"`
	MongoDB  *MongoSink    `yaml:"mongodb,omitempty"`
}

type SQLiteSink struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table,omitempty"`
}

type PostgresSink struct {
	ConnectionString string `yaml:"connection_string"`
	Table            string `yaml:"table,omitempty"`
}

type MongoSink struct {
	ConnectionString string `yaml:"connection_string"`
	Database         string `yaml:"database"`
	Collection       string `yaml:"collection,omitempty"`
	BatchSize        int    `yaml:"batch_size,omitempty"`
}

// MetricsConfig enables pushing run metrics.
type MetricsConfig struct {
	Pushgateway string `yaml:"pushgateway,omitempty"`
	Job         string `yaml:"job,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // empty logs to stdout only
}

// Load reads and parses the config file from the given path. A .env file
// beside it is loaded into the environment first; variables already set win.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	path = ExpandHome(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	dir := filepath.Dir(path)
	envFile := filepath.Join(dir, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.dir = dir

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	cfg.resolvePaths()
	return cfg, nil
}

// Parse decodes a config document and checks its version. Defaults are not
// applied.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}
	return cfg, nil
}

// Default returns the configuration for the three reference cohorts, with
// data under data/ and results under output/.
func Default() *Config {
	rules := normalize.DefaultRules()
	cfg := &Config{
		Version: CurrentVersion,
		Sources: []SourceConfig{
			{Tag: "METABRIC", Key: "metabric", Path: "data/metabric_consolidated.csv"},
			{Tag: "SCANB", Key: "scanb", Path: "data/scanb_consolidated.csv"},
			{Tag: "TCGA", Key: "tcga", Path: "data/tcga_brca_consolidated.csv"},
		},
		Mapping:       "mapeo_columnas.yaml",
		Normalization: &rules,
	}
	cfg.applyDefaults()
	return cfg
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}
	path = ExpandHome(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	for i := range c.Sources {
		if c.Sources[i].Key == "" {
			c.Sources[i].Key = strings.ToLower(c.Sources[i].Tag)
		}
	}
	if c.Mapping == "" {
		c.Mapping = "mapeo_columnas.yaml"
	}
	o := &c.Output
	if o.Directory == "" {
		o.Directory = "output"
	}
	if o.Unified == "" {
		o.Unified = "unified.csv"
	}
	if o.Report == "" {
		o.Report = "completeness.txt"
	}
	if o.ReportJSON == "" {
		o.ReportJSON = "completeness.json"
	}
	if o.Suggestions == "" {
		o.Suggestions = "mapeo_sugerido.yaml"
	}
	if o.Overlap == "" {
		o.Overlap = "overlap.txt"
	}
	if o.Inventory == "" {
		o.Inventory = "columns.yaml"
	}
	if c.Matcher.Threshold == 0 {
		c.Matcher.Threshold = mapping.DefaultThreshold
	}
	if c.Matcher.Scorer == "" {
		c.Matcher.Scorer = mapping.ScorerLevenshtein
	}
	if c.Matcher.SkipCategories == nil {
		c.Matcher.SkipCategories = append([]mapping.Category(nil), mapping.DefaultSkipCategories...)
	}
	if c.Normalization == nil {
		rules := normalize.DefaultRules()
		c.Normalization = &rules
	}
	if c.IdentifierColumn == "" {
		c.IdentifierColumn = DefaultIdentifierColumn
	}
	if s := c.Sinks.SQLite; s != nil && s.Table == "" {
		s.Table = "unified"
	}
	if s := c.Sinks.Postgres; s != nil && s.Table == "" {
		s.Table = "unified"
	}
	if s := c.Sinks.MongoDB; s != nil {
		if s.Collection == "" {
			s.Collection = "unified"
		}
		if s.BatchSize == 0 {
			s.BatchSize = 500
		}
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "brcamerge"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// resolvePaths makes file paths relative to the config file's directory.
func (c *Config) resolvePaths() {
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Path = c.Resolve(s.Path)
		s.Columns = c.Resolve(s.Columns)
		for j := range s.Parts {
			s.Parts[j].Path = c.Resolve(s.Parts[j].Path)
		}
	}
	c.Mapping = c.Resolve(c.Mapping)
	c.Output.Directory = c.Resolve(c.Output.Directory)
	if c.Sinks.SQLite != nil {
		c.Sinks.SQLite.Path = c.Resolve(c.Sinks.SQLite.Path)
	}
	c.Logging.Directory = c.Resolve(c.Logging.Directory)
}

// Resolve expands ~ and joins relative paths onto the config directory.
func (c *Config) Resolve(path string) string {
	if path == "" {
		return ""
	}
	path = ExpandHome(path)
	if filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}

// OutputPath returns name inside the output directory. Absolute names are
// returned unchanged.
func (c *Config) OutputPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Directory, name)
}

// Source finds a source by tag, case-insensitively.
func (c *Config) Source(tag string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if strings.EqualFold(s.Tag, tag) {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// SourceKeys lists the mapping-file keys in source order.
func (c *Config) SourceKeys() []string {
	keys := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		keys[i] = s.Key
	}
	return keys
}

// MissingSet returns the configured missing-value spellings as a lookup set.
func (c *Config) MissingSet() map[string]bool {
	return table.MissingSet(c.MissingTokens)
}

// Validate checks the configuration after defaults are applied. Every problem
// is reported.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	tags := map[string]bool{}
	keys := map[string]bool{}
	for i, s := range c.Sources {
		switch {
		case s.Tag == "":
			errs = append(errs, fmt.Errorf("sources[%d]: tag is required", i))
		case tags[strings.ToUpper(s.Tag)]:
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate tag %s", i, s.Tag))
		}
		tags[strings.ToUpper(s.Tag)] = true
		if keys[s.Key] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate mapping key %s", i, s.Key))
		}
		keys[s.Key] = true
		if s.Path == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: path is required", i))
		}
		if _, err := table.ParseDelimiter(s.Delimiter); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d]: %w", i, err))
		}
		for j, p := range s.Parts {
			if err := p.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("sources[%d].parts[%d]: %w", i, j, err))
			}
		}
	}
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 1 {
		errs = append(errs, fmt.Errorf("matcher.threshold %.2f outside [0,1]", c.Matcher.Threshold))
	}
	if _, err := mapping.NewScorer(c.Matcher.Scorer); err != nil {
		errs = append(errs, fmt.Errorf("matcher.scorer: %w", err))
	}
	if c.Normalization != nil {
		if err := c.Normalization.ValidateAll(table.SourceColumn, c.IdentifierColumn); err != nil {
			errs = append(errs, fmt.Errorf("normalization: %w", err))
		}
		for _, conv := range c.Normalization.Conversions {
			if !tags[strings.ToUpper(conv.Source)] && len(c.Sources) > 0 {
				errs = append(errs, fmt.Errorf("normalization: %s targets unknown source %s", conv, conv.Source))
			}
		}
	}
	if s := c.Sinks.MongoDB; s != nil && s.Database == "" {
		errs = append(errs, errors.New("sinks.mongodb: database is required"))
	}
	return errors.Join(errs...)
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	if s := c.Sinks.Postgres; s != nil {
		v, err := ResolveValue(s.ConnectionString)
		if err != nil {
			return fmt.Errorf("postgres connection string: %w", err)
		}
		s.ConnectionString = v
	}
	if s := c.Sinks.MongoDB; s != nil {
		v, err := ResolveValue(s.ConnectionString)
		if err != nil {
			return fmt.Errorf("mongodb connection string: %w", err)
		}
		s.ConnectionString = v
	}
	v, err := ResolveValue(c.Metrics.Pushgateway)
	if err != nil {
		return fmt.Errorf("metrics pushgateway: %w", err)
	}
	c.Metrics.Pushgateway = v
	return nil
}

// ResolveValue resolves every secret reference in a string value, so a
// reference may be embedded in a larger string such as a connection URI.
func ResolveValue(val string) (string, error) {
	var firstErr error
	out := secretPattern.ReplaceAllStringFunc(val, func(m string) string {
		if firstErr != nil {
			return m
		}
		parts := secretPattern.FindStringSubmatch(m)
		v, err := resolveRef(parts[1], parts[2])
		if err != nil {
			firstErr = err
			return m
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func resolveRef(provider, ref string) (string, error) {
	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// Fingerprint hashes the settings that shape the unified table: sources,
// mapping path, output names, missing tokens, the identifier column and the
// normalization rules. Sinks, metrics, logging and resolved secrets are left
// out.
func (c *Config) Fingerprint() (string, error) {
	data, err := yaml.Marshal(struct {
		Sources          []SourceConfig   `yaml:"sources"`
		Mapping          string           `yaml:"mapping"`
		Output           OutputConfig     `yaml:"output"`
		Normalization    *normalize.Rules `yaml:"normalization"`
		MissingTokens    []string         `yaml:"missing_tokens"`
		IdentifierColumn string           `yaml:"identifier_column"`
	}{c.Sources, c.Mapping, c.Output, c.Normalization, c.MissingTokens, c.IdentifierColumn})
	if err != nil {
		return "", fmt.Errorf("fingerprinting config: %w", err)
	}
	return table.FormatFingerprint(xxh3.Hash(data)), nil
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
