package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultModelPathPattern matches dbt model files one directory below models/.
const DefaultModelPathPattern = `(?i)^models/\w+/\w+\.sql`

// actionInputPrefix is prepended by GitHub Actions to workflow inputs.
const actionInputPrefix = "INPUT_"

// Config holds every setting of a run. It is built once by Load and passed
// to each component.
type Config struct {
	SelectStarAPIURL         string `koanf:"selectstar_api_url" validate:"required,url"`
	SelectStarWebURL         string `koanf:"selectstar_web_url" validate:"required,url"`
	SelectStarAPIToken       string `koanf:"selectstar_api_token" validate:"required"`
	SelectStarDatasourceGUID string `koanf:"selectstar_datasource_guid" validate:"required"`
	GitProvider              string `koanf:"git_provider" validate:"required,oneof=github bitbucket"`
	GitRepository            string `koanf:"git_repository" validate:"required"`
	GitRepositoryToken       string `koanf:"git_repository_token" validate:"required"`
	PullRequestID            string `koanf:"pull_request_id" validate:"required"`
	GitAPIURL                string `koanf:"git_api_url" validate:"omitempty,url"`
	ModelPathPattern         string `koanf:"model_path_pattern" validate:"required"`

	// GitCI is true unless git_ci is literally "false" or "False".
	GitCI bool `koanf:"-"`
	// ConfigFile is the YAML file that was loaded, if any.
	ConfigFile string `koanf:"-"`

	// loadProblems holds failures tolerated by Options.SkipValidation.
	loadProblems []string
}

// keys lists the settings in display order.
var keys = []struct {
	name    string
	secret  bool
	display func(*Config) string
}{
	{"selectstar_api_url", false, func(c *Config) string { return c.SelectStarAPIURL }},
	{"selectstar_web_url", false, func(c *Config) string { return c.SelectStarWebURL }},
	{"selectstar_api_token", true, func(c *Config) string { return c.SelectStarAPIToken }},
	{"selectstar_datasource_guid", false, func(c *Config) string { return c.SelectStarDatasourceGUID }},
	{"git_provider", false, func(c *Config) string { return c.GitProvider }},
	{"git_ci", false, func(c *Config) string { return strconv.FormatBool(c.GitCI) }},
	{"git_repository", false, func(c *Config) string { return c.GitRepository }},
	{"git_repository_token", true, func(c *Config) string { return c.GitRepositoryToken }},
	{"pull_request_id", false, func(c *Config) string { return c.PullRequestID }},
	{"git_api_url", false, func(c *Config) string { return c.GitAPIURL }},
	{"model_path_pattern", false, func(c *Config) string { return c.ModelPathPattern }},
}

// EnvName returns the environment variable name of a setting key.
func EnvName(key string) string {
	return strings.ToUpper(key)
}

func isKnownKey(key string) bool {
	for _, k := range keys {
		if k.name == key {
			return true
		}
	}
	return false
}

// Setting is one printable configuration entry.
type Setting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Printable lists every setting by environment variable name, with secrets
// replaced by **HIDDEN**.
func (c *Config) Printable() []Setting {
	out := make([]Setting, 0, len(keys))
	for _, k := range keys {
		v := k.display(c)
		if k.secret {
			v = "**HIDDEN**"
		}
		out = append(out, Setting{Name: EnvName(k.name), Value: v})
	}
	return out
}

// Options controls where Load reads settings from.
type Options struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string
	// EnvFile is a dotenv file loaded into the process environment without
	// overriding variables already set. Defaults to ".env"; a missing file
	// is ignored.
	EnvFile string
	// Flags holds explicitly set CLI flags, which take precedence over
	// every other source.
	Flags *pflag.FlagSet
	// SkipValidation returns the merged settings even when some are missing
	// or malformed, or the CI event cannot be read. Validate reports them.
	SkipValidation bool
}

// Load resolves the configuration.
// Precedence (highest to lowest): flags > CI event > env vars > INPUT_ env
// vars > dotenv file > config file > defaults.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"git_ci":             "true",
		"model_path_pattern": DefaultModelPathPattern,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", opts.ConfigFile, err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
	}

	if err := k.Load(env.ProviderWithValue(actionInputPrefix, ".", func(key, value string) (string, any) {
		return envKey(strings.TrimPrefix(key, actionInputPrefix), value)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading action inputs: %w", err)
	}

	if err := k.Load(env.ProviderWithValue("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnownKey(key) {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var loadProblems []string
	gitCI := parseGitCI(k.String("git_ci"))
	if gitCI {
		event, err := loadCIEvent(k.String("git_provider"))
		if err != nil {
			if !opts.SkipValidation {
				return nil, err
			}
			loadProblems = append(loadProblems, err.Error())
		}
		for key, val := range event {
			if flagChanged(opts.Flags, key) {
				continue
			}
			if err := k.Set(key, val); err != nil {
				return nil, fmt.Errorf("applying CI event: %w", err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.GitCI = gitCI
	cfg.ConfigFile = opts.ConfigFile
	cfg.loadProblems = loadProblems

	if opts.SkipValidation {
		return &cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseGitCI reports CI mode: anything but a literal "false" or "False".
func parseGitCI(v string) bool {
	return v != "false" && v != "False"
}

func flagChanged(flags *pflag.FlagSet, key string) bool {
	if flags == nil {
		return false
	}
	f := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
	return f != nil && f.Changed
}

// envKey maps an environment variable onto a setting key, skipping unknown
// variables and empty values.
func envKey(key, value string) (string, any) {
	name := strings.ToLower(key)
	if value == "" || !isKnownKey(name) {
		return "", nil
	}
	return name, value
}

// githubEvent is the subset of $GITHUB_EVENT_PATH read for pull requests.
type githubEvent struct {
	Number     int `json:"number"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// loadCIEvent reads repository and pull request id from the CI event payload.
func loadCIEvent(provider string) (map[string]any, error) {
	if provider != "github" {
		return nil, fmt.Errorf("unknown git provider for CI: %q", provider)
	}

	path := os.Getenv("GITHUB_EVENT_PATH")
	if path == "" {
		return nil, errors.New("GITHUB_EVENT_PATH is not set: is this running inside a GitHub workflow? Set GIT_CI=false otherwise")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading GitHub event %s: %w", path, err)
	}

	var ev githubEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parsing GitHub event %s: %w", path, err)
	}
	if ev.Repository.FullName == "" || ev.Number == 0 {
		return nil, fmt.Errorf("GitHub event %s is not a pull request event", path)
	}

	return map[string]any{
		"git_repository":  ev.Repository.FullName,
		"pull_request_id": strconv.Itoa(ev.Number),
	}, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return EnvName(name)
	})
	return v
}

// Validate checks that every required setting is present and well formed.
// Problems tolerated while loading are reported first.
func (c *Config) Validate() error {
	msgs := append([]string(nil), c.loadProblems...)

	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if err != nil && !errors.As(err, &verrs) {
		return err
	}

	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("required setting not found: %s", fe.Field()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("invalid setting %s: %q is not a URL", fe.Field(), fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("invalid setting %s: %q must be one of %s", fe.Field(), fe.Value(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("invalid setting %s", fe.Field()))
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Problems: msgs}
}

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}
