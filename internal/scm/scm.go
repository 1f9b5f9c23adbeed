// Package scm implements the source-control side of the impact report: list
// the dbt models changed by a pull request and keep one anchored report
// comment up to date.
package scm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/selectstar/dbt-impact-report-action/internal/config"
	"github.com/selectstar/dbt-impact-report-action/internal/model"
)

// CommentAnchor marks the report comment so later runs update it in place.
const CommentAnchor = "<!-- ImpactReportIdentifier: select-star-dbt-impact-report -->"

// Provider names accepted by New.
const (
	ProviderGitHub    = "github"
	ProviderBitbucket = "bitbucket"
)

// Providers lists the supported provider names.
var Providers = []string{ProviderGitHub, ProviderBitbucket}

// Comment is a pull-request comment carrying the report.
type Comment struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Created bool   `json:"created"`
}

// Provider is a source-control system hosting the pull request.
type Provider interface {
	// Name returns the provider name, e.g. "github".
	Name() string
	// ChangedModels returns the dbt models touched by the pull request.
	ChangedModels(ctx context.Context) ([]*model.ChangedModel, error)
	// UpsertReport posts body as the report comment, updating the existing
	// anchored comment when there is one.
	UpsertReport(ctx context.Context, body string) (*Comment, error)
}

type options struct {
	log     *zap.Logger
	pattern *regexp.Regexp
	client  httpDoer
}

// Option configures a Provider.
type Option func(*options)

// WithLogger sets the provider logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c httpDoer) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// New returns the provider selected by cfg.GitProvider.
func New(cfg *config.Config, opts ...Option) (Provider, error) {
	pattern, err := regexp.Compile(cfg.ModelPathPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling model path pattern %q: %w", cfg.ModelPathPattern, err)
	}

	o := options{log: zap.NewNop(), pattern: pattern}
	for _, opt := range opts {
		opt(&o)
	}

	switch strings.ToLower(cfg.GitProvider) {
	case ProviderGitHub:
		return newGitHub(cfg, o), nil
	case ProviderBitbucket:
		return newBitbucket(cfg, o), nil
	default:
		return nil, fmt.Errorf("unknown git provider %q: must be one of %v", cfg.GitProvider, Providers)
	}
}

// anchored prefixes body with the comment anchor.
func anchored(body string) string {
	return CommentAnchor + "\n" + body
}

// changedFile is a provider-neutral changed file entry.
type changedFile struct {
	path   string
	status model.ChangeStatus
}

// filterModels keeps the files whose path matches pattern.
func filterModels(files []changedFile, pattern *regexp.Regexp) ([]*model.ChangedModel, error) {
	var models []*model.ChangedModel
	for _, f := range files {
		if !pattern.MatchString(f.path) {
			continue
		}
		m, err := model.NewChangedModel(f.path, f.status)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func logModels(log *zap.Logger, models []*model.ChangedModel) {
	found := make([]string, len(models))
	for i, m := range models {
		found[i] = fmt.Sprintf("%s (%s)", m.Filename(), m.Status)
	}
	log.Info("found changed models", zap.Strings("models", found))
}
