package scm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/selectstar/dbt-impact-report-action/internal/config"
	"github.com/selectstar/dbt-impact-report-action/internal/model"
)

const (
	defaultGitHubAPI = "https://api.github.com"
	githubPageSize   = 100
)

var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

type github struct {
	req        *requester
	log        *zap.Logger
	pattern    *regexp.Regexp
	apiURL     string
	repository string
	pullID     string
}

func newGitHub(cfg *config.Config, o options) *github {
	apiURL := cfg.GitAPIURL
	if apiURL == "" {
		apiURL = defaultGitHubAPI
	}
	return &github{
		req:        newRequester(cfg.GitRepositoryToken, o),
		log:        o.log,
		pattern:    o.pattern,
		apiURL:     strings.TrimRight(apiURL, "/"),
		repository: cfg.GitRepository,
		pullID:     cfg.PullRequestID,
	}
}

func (g *github) Name() string { return ProviderGitHub }

func (g *github) filesURL() string {
	return fmt.Sprintf("%s/repos/%s/pulls/%s/files?per_page=%d", g.apiURL, g.repository, g.pullID, githubPageSize)
}

func (g *github) commentsURL() string {
	return fmt.Sprintf("%s/repos/%s/issues/%s/comments", g.apiURL, g.repository, g.pullID)
}

func (g *github) commentURL(id string) string {
	return fmt.Sprintf("%s/repos/%s/issues/comments/%s", g.apiURL, g.repository, id)
}

type githubFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

type githubComment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

func (c githubComment) toComment(created bool) *Comment {
	return &Comment{ID: strconv.FormatInt(c.ID, 10), URL: c.HTMLURL, Created: created}
}

// ChangedModels reads the first page of pull-request files only.
func (g *github) ChangedModels(ctx context.Context) ([]*model.ChangedModel, error) {
	var files []githubFile
	if _, err := g.req.do(ctx, http.MethodGet, g.filesURL(), nil, &files); err != nil {
		return nil, fmt.Errorf("listing pull request files: %w", err)
	}

	if len(files) == githubPageSize {
		g.log.Warn("processing only the first files of the pull request", zap.Int("limit", githubPageSize))
	}

	changed := make([]changedFile, len(files))
	for i, f := range files {
		changed[i] = changedFile{path: f.Filename, status: model.ChangeStatus(f.Status)}
	}

	models, err := filterModels(changed, g.pattern)
	if err != nil {
		return nil, err
	}
	logModels(g.log, models)
	return models, nil
}

func (g *github) findReport(ctx context.Context) (*githubComment, error) {
	next := g.commentsURL() + "?per_page=" + strconv.Itoa(githubPageSize)
	for next != "" {
		var page []githubComment
		header, err := g.req.do(ctx, http.MethodGet, next, nil, &page)
		if err != nil {
			return nil, fmt.Errorf("listing pull request comments: %w", err)
		}
		for i := range page {
			if strings.Contains(page[i].Body, CommentAnchor) {
				return &page[i], nil
			}
		}
		next = nextLink(header.Get("Link"))
	}
	return nil, nil
}

func nextLink(header string) string {
	m := linkNextPattern.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

func (g *github) UpsertReport(ctx context.Context, body string) (*Comment, error) {
	g.log.Info("searching for previous impact report")
	existing, err := g.findReport(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]string{"body": anchored(body)}

	if existing != nil {
		g.log.Info("previous impact report found", zap.Int64("id", existing.ID), zap.String("url", existing.HTMLURL))
		var updated githubComment
		if _, err := g.req.do(ctx, http.MethodPatch, g.commentURL(strconv.FormatInt(existing.ID, 10)), payload, &updated); err != nil {
			return nil, fmt.Errorf("updating impact report: %w", err)
		}
		g.log.Info("impact report updated", zap.Int64("id", updated.ID), zap.String("url", updated.HTMLURL))
		return updated.toComment(false), nil
	}

	g.log.Info("previous impact report not found, creating a new one")
	var created githubComment
	if _, err := g.req.do(ctx, http.MethodPost, g.commentsURL(), payload, &created); err != nil {
		return nil, fmt.Errorf("creating impact report: %w", err)
	}
	g.log.Info("impact report created", zap.Int64("id", created.ID), zap.String("url", created.HTMLURL))
	return created.toComment(true), nil
}
