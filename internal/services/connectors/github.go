package connectors

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"golang.org/x/oauth2"
)

// GitHubConnector pulls public GitHub material for an entity: the user
// profile and the READMEs of their most recently pushed repositories. Each
// piece becomes a markdown document queued for ingestion.
type GitHubConnector struct {
	client   *github.Client
	maxRepos int
	storage  interfaces.StorageManager
	queue    interfaces.QueueManager
	logger   arbor.ILogger
}

// NewGitHubConnector creates the connector. An empty token falls back to
// unauthenticated requests, which work with tight rate limits.
func NewGitHubConnector(cfg *common.GitHubConfig, storage interfaces.StorageManager, queue interfaces.QueueManager, logger arbor.ILogger) *GitHubConnector {
	var client *github.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}

	maxRepos := cfg.MaxRepos
	if maxRepos <= 0 {
		maxRepos = 3
	}

	return &GitHubConnector{
		client:   client,
		maxRepos: maxRepos,
		storage:  storage,
		queue:    queue,
		logger:   logger,
	}
}

// SyncEntity fetches GitHub content for the entity and stores it as pending
// documents with ingest tasks enqueued. The entity must carry a
// metadata.github_login value. Returns the number of documents created.
func (c *GitHubConnector) SyncEntity(ctx context.Context, entityID string) (int, error) {
	entity, err := c.storage.Entities().GetEntity(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("load entity: %w", err)
	}

	login, _ := entity.Metadata["github_login"].(string)
	if login == "" {
		return 0, fmt.Errorf("entity has no github_login metadata")
	}

	logger := c.logger.WithCorrelationId(entityID)
	created := 0

	user, _, err := c.client.Users.Get(ctx, login)
	if err != nil {
		return 0, fmt.Errorf("fetch github user %s: %w", login, err)
	}
	if err := c.saveDocument(ctx, entity, fmt.Sprintf("GitHub profile: %s", login), profileMarkdown(user)); err != nil {
		return created, err
	}
	created++

	repos, _, err := c.client.Repositories.List(ctx, login, &github.RepositoryListOptions{
		Sort:        "pushed",
		ListOptions: github.ListOptions{PerPage: c.maxRepos},
	})
	if err != nil {
		return created, fmt.Errorf("list repositories for %s: %w", login, err)
	}

	for _, repo := range repos {
		if repo.GetFork() {
			continue
		}
		readme, _, err := c.client.Repositories.GetReadme(ctx, login, repo.GetName(), nil)
		if err != nil {
			logger.Debug().
				Str("repo", repo.GetFullName()).
				Msg("Repository has no readable README, skipping")
			continue
		}
		content, err := readme.GetContent()
		if err != nil || content == "" {
			continue
		}
		if err := c.saveDocument(ctx, entity, fmt.Sprintf("README: %s", repo.GetFullName()), content); err != nil {
			return created, err
		}
		created++
	}

	logger.Info().
		Str("login", login).
		Int("documents", created).
		Msg("GitHub content synced")
	return created, nil
}

func (c *GitHubConnector) saveDocument(ctx context.Context, entity *models.Entity, title, body string) error {
	doc := models.NewDocument(entity.ID, title)
	doc.Body = body
	doc.ContentType = "text/markdown"
	if err := c.storage.Documents().SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	task, err := models.NewIngestDocumentTask(doc.ID)
	if err != nil {
		return fmt.Errorf("build ingest task: %w", err)
	}
	if err := c.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue ingest task: %w", err)
	}
	return nil
}

// profileMarkdown renders the profile fields worth matching on
func profileMarkdown(user *github.User) string {
	md := fmt.Sprintf("# %s\n", user.GetLogin())
	if name := user.GetName(); name != "" {
		md += fmt.Sprintf("\n**Name:** %s\n", name)
	}
	if bio := user.GetBio(); bio != "" {
		md += fmt.Sprintf("\n%s\n", bio)
	}
	if company := user.GetCompany(); company != "" {
		md += fmt.Sprintf("\n**Company:** %s\n", company)
	}
	if location := user.GetLocation(); location != "" {
		md += fmt.Sprintf("\n**Location:** %s\n", location)
	}
	if blog := user.GetBlog(); blog != "" {
		md += fmt.Sprintf("\n**Website:** %s\n", blog)
	}
	md += fmt.Sprintf("\n**Public repositories:** %d\n", user.GetPublicRepos())
	return md
}
