// Package resolver locates the parent work item already referenced on a
// Confluence page, so task-derived issues can be linked under it.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/confluence"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/jira"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/markup"
)

// PageReader fetches page content.
type PageReader interface {
	GetPage(ctx context.Context, pageID string, version int) (*confluence.Page, bool)
}

// IssueReader fetches issues from the tracker.
type IssueReader interface {
	GetIssue(ctx context.Context, key string, fields ...string) (jira.Issue, bool)
}

// Finder scans pages for issue-reference macros and validates them against
// the tracker.
type Finder struct {
	pages  PageReader
	issues IssueReader
	cfg    config.Config
	logger *zap.Logger
}

// NewFinder creates a Finder.
func NewFinder(pages PageReader, issues IssueReader, cfg config.Config, logger *zap.Logger) *Finder {
	return &Finder{pages: pages, issues: issues, cfg: cfg, logger: logger}
}

// FindParentOnPage returns the first issue referenced on the page whose type
// matches one of the configured parent types. Macros nested inside an
// aggregation construct are never considered: their content originates on
// another page and matching them would create a false parent linkage.
// Absence is a valid, expected outcome.
func (f *Finder) FindParentOnPage(ctx context.Context, pageID string) (jira.Issue, bool) {
	page, ok := f.pages.GetPage(ctx, pageID, 0)
	if !ok || page.Body == "" {
		f.logger.Warn("could not retrieve page content for parent lookup",
			zap.String("page_id", pageID))
		return jira.Issue{}, false
	}
	doc, err := markup.Parse(page.Body)
	if err != nil {
		f.logger.Error("failed to parse page body for parent lookup",
			zap.String("page_id", pageID),
			zap.Error(err),
		)
		return jira.Issue{}, false
	}

	targetIDs := make(map[string]bool, len(f.cfg.ParentIssueTypes))
	for _, id := range f.cfg.ParentIssueTypes {
		targetIDs[id] = true
	}
	aggregation := make(map[string]bool, len(f.cfg.AggregationMacros))
	for _, name := range f.cfg.AggregationMacros {
		aggregation[name] = true
	}

	for _, macro := range markup.IssueMacros(doc, aggregation) {
		candidate, ok := f.issues.GetIssue(ctx, macro.Key, "issuetype")
		if !ok {
			continue
		}
		if !targetIDs[candidate.TypeID] {
			continue
		}
		f.logger.Info("found matching parent issue",
			zap.String("issue_key", macro.Key),
			zap.String("page_id", pageID),
		)
		return f.issues.GetIssue(ctx, macro.Key, "key", "issuetype", "assignee", "reporter")
	}

	f.logger.Info("no matching parent issue found on page", zap.String("page_id", pageID))
	return jira.Issue{}, false
}
