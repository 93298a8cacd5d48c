// Package jira adapts the external issue tracker to the issue source
// contract consumed by the reconciler.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jiraapi "github.com/andygrunwald/go-jira"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leanrobert/telegram-jira-bot/internal/config"
	"github.com/leanrobert/telegram-jira-bot/internal/domain"
	"github.com/leanrobert/telegram-jira-bot/internal/persistence"
)

// Client queries Jira for a subscriber's tickets with full change history.
// Search results are cached briefly in Redis so overlapping cycles and the
// surrounding bot do not hammer the tracker.
type Client struct {
	api    *jiraapi.Client
	cache  *persistence.Redis
	cfg    config.JiraConfig
	logger *zap.Logger
}

// NewClient builds the Jira client and verifies credentials.
func NewClient(cfg config.JiraConfig, cache *persistence.Redis, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("JIRA_BASE_URL is required")
	}

	transport := jiraapi.BasicAuthTransport{
		Username: cfg.Username,
		Password: cfg.APIToken,
	}
	api, err := jiraapi.NewClient(transport.Client(), cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}

	if _, _, err := api.User.GetSelfWithContext(context.Background()); err != nil {
		return nil, fmt.Errorf("verify jira credentials: %w", err)
	}
	logger.Info("connected to jira", zap.String("base_url", cfg.BaseURL))

	return &Client{api: api, cache: cache, cfg: cfg, logger: logger}, nil
}

// SearchTicketsWithHistory returns the subscriber's tickets ordered by last
// update, each with its full changelog.
func (c *Client) SearchTicketsWithHistory(ctx context.Context, identity domain.Identity) ([]domain.TrackedTicket, error) {
	jql, err := c.buildJQL(identity)
	if err != nil {
		return nil, err
	}

	cacheKey := "jira:search:" + jql
	if cached, ok := c.cacheGet(ctx, cacheKey); ok {
		return cached, nil
	}

	issues, _, err := c.api.Issue.SearchWithContext(ctx, jql, &jiraapi.SearchOptions{
		MaxResults: c.cfg.MaxResults,
		Expand:     "changelog",
	})
	if err != nil {
		return nil, fmt.Errorf("search jira issues: %w", err)
	}

	tickets := make([]domain.TrackedTicket, 0, len(issues))
	for i := range issues {
		tickets = append(tickets, mapIssue(&issues[i]))
	}

	c.cacheSet(ctx, cacheKey, tickets)
	return tickets, nil
}

func (c *Client) buildJQL(identity domain.Identity) (string, error) {
	switch {
	case identity.Username != "":
		return fmt.Sprintf(`%s ~ %q ORDER BY updated DESC`, c.cfg.UsernameField, identity.Username), nil
	case identity.FullName != "":
		return fmt.Sprintf(`%s ~ %q ORDER BY updated DESC`, c.cfg.FullNameField, identity.FullName), nil
	default:
		return "", errors.New("subscriber has neither username nor full name")
	}
}

func (c *Client) cacheGet(ctx context.Context, key string) ([]domain.TrackedTicket, bool) {
	if c.cache == nil || c.cache.Client == nil || c.cfg.CacheTTL() <= 0 {
		return nil, false
	}
	raw, err := c.cache.Client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("jira cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var tickets []domain.TrackedTicket
	if err := json.Unmarshal(raw, &tickets); err != nil {
		return nil, false
	}
	return tickets, true
}

func (c *Client) cacheSet(ctx context.Context, key string, tickets []domain.TrackedTicket) {
	if c.cache == nil || c.cache.Client == nil || c.cfg.CacheTTL() <= 0 {
		return
	}
	raw, err := json.Marshal(tickets)
	if err != nil {
		return
	}
	if err := c.cache.Client.Set(ctx, key, raw, c.cfg.CacheTTL()).Err(); err != nil {
		c.logger.Warn("jira cache write failed", zap.Error(err))
	}
}

func mapIssue(issue *jiraapi.Issue) domain.TrackedTicket {
	ticket := domain.TrackedTicket{JiraKey: issue.Key}

	if fields := issue.Fields; fields != nil {
		ticket.Title = fields.Summary
		ticket.Description = fields.Description
		ticket.Category = fields.Type.Name
		if fields.Status != nil {
			ticket.Status = fields.Status.Name
		}
		if fields.Priority != nil {
			ticket.Priority = fields.Priority.Name
		}
		if due := time.Time(fields.Duedate); !due.IsZero() {
			ticket.DueDate = &due
		}
	}

	if issue.Changelog == nil {
		return ticket
	}
	for _, history := range issue.Changelog.Histories {
		createdAt, err := history.CreatedTime()
		if err != nil {
			// unparseable timestamp; the entry cannot be windowed, drop it
			continue
		}
		entry := domain.HistoryEntry{
			Author:    history.Author.DisplayName,
			CreatedAt: createdAt,
		}
		for _, item := range history.Items {
			entry.Items = append(entry.Items, domain.HistoryItem{
				Field: item.Field,
				From:  item.FromString,
				To:    item.ToString,
			})
		}
		ticket.History = append(ticket.History, entry)
	}
	return ticket
}
