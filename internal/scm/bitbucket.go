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

const defaultBitbucketAPI = "https://api.bitbucket.org/2.0"

type bitbucket struct {
	req        *requester
	log        *zap.Logger
	pattern    *regexp.Regexp
	apiURL     string
	repository string
	pullID     string
}

func newBitbucket(cfg *config.Config, o options) *bitbucket {
	apiURL := cfg.GitAPIURL
	if apiURL == "" {
		apiURL = defaultBitbucketAPI
	}
	return &bitbucket{
		req:        newRequester(cfg.GitRepositoryToken, o),
		log:        o.log,
		pattern:    o.pattern,
		apiURL:     strings.TrimRight(apiURL, "/"),
		repository: cfg.GitRepository,
		pullID:     cfg.PullRequestID,
	}
}

func (b *bitbucket) Name() string { return ProviderBitbucket }

func (b *bitbucket) pullURL() string {
	return fmt.Sprintf("%s/repositories/%s/pullrequests/%s", b.apiURL, b.repository, b.pullID)
}

type bitbucketPath struct {
	Path string `json:"path"`
}

type bitbucketDiffstat struct {
	Status string         `json:"status"`
	Old    *bitbucketPath `json:"old"`
	New    *bitbucketPath `json:"new"`
}

func (d bitbucketDiffstat) path() string {
	if d.New != nil && d.New.Path != "" {
		return d.New.Path
	}
	if d.Old != nil {
		return d.Old.Path
	}
	return ""
}

// status maps Bitbucket diffstat statuses onto change statuses.
func (d bitbucketDiffstat) status() model.ChangeStatus {
	switch d.Status {
	case "added":
		return model.StatusAdded
	case "removed":
		return model.StatusRemoved
	case "renamed":
		return model.StatusRenamed
	case "modified":
		return model.StatusModified
	default:
		return model.StatusChanged
	}
}

type bitbucketComment struct {
	ID      int64 `json:"id"`
	Content struct {
		Raw string `json:"raw"`
	} `json:"content"`
	Links struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"links"`
}

func (c bitbucketComment) toComment(created bool) *Comment {
	return &Comment{ID: strconv.FormatInt(c.ID, 10), URL: c.Links.HTML.Href, Created: created}
}

type bitbucketPage[T any] struct {
	Values []T    `json:"values"`
	Next   string `json:"next"`
}

func (b *bitbucket) ChangedModels(ctx context.Context) ([]*model.ChangedModel, error) {
	var changed []changedFile
	next := b.pullURL() + "/diffstat"
	for next != "" {
		var page bitbucketPage[bitbucketDiffstat]
		if _, err := b.req.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("listing pull request diffstat: %w", err)
		}
		for _, d := range page.Values {
			changed = append(changed, changedFile{path: d.path(), status: d.status()})
		}
		next = page.Next
	}

	models, err := filterModels(changed, b.pattern)
	if err != nil {
		return nil, err
	}
	logModels(b.log, models)
	return models, nil
}

func (b *bitbucket) findReport(ctx context.Context) (*bitbucketComment, error) {
	next := b.pullURL() + "/comments"
	for next != "" {
		var page bitbucketPage[bitbucketComment]
		if _, err := b.req.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("listing pull request comments: %w", err)
		}
		for i := range page.Values {
			if strings.Contains(page.Values[i].Content.Raw, CommentAnchor) {
				return &page.Values[i], nil
			}
		}
		next = page.Next
	}
	return nil, nil
}

func (b *bitbucket) UpsertReport(ctx context.Context, body string) (*Comment, error) {
	b.log.Info("searching for previous impact report")
	existing, err := b.findReport(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"content": map[string]string{"raw": anchored(body)}}

	if existing != nil {
		b.log.Info("previous impact report found", zap.Int64("id", existing.ID), zap.String("url", existing.Links.HTML.Href))
		var updated bitbucketComment
		url := fmt.Sprintf("%s/comments/%d", b.pullURL(), existing.ID)
		if _, err := b.req.do(ctx, http.MethodPut, url, payload, &updated); err != nil {
			return nil, fmt.Errorf("updating impact report: %w", err)
		}
		b.log.Info("impact report updated", zap.Int64("id", updated.ID))
		return updated.toComment(false), nil
	}

	b.log.Info("previous impact report not found, creating a new one")
	var created bitbucketComment
	if _, err := b.req.do(ctx, http.MethodPost, b.pullURL()+"/comments", payload, &created); err != nil {
		return nil, fmt.Errorf("creating impact report: %w", err)
	}
	b.log.Info("impact report created", zap.Int64("id", created.ID))
	return created.toComment(true), nil
}
