package confluence

import (
	"context"

	"go.uber.org/zap"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/markup"
	"github.com/tdnguyen0403/confluence-jira-task-sync/pkg/types"
)

// TasksFromPage extracts the page's task markers as task records, in
// document order. The body is parsed once; every marker reuses the same
// tree. Markers without a due date receive defaultDueDate. Duplicate task
// ids are not deduplicated here; callers treat the id as the identity key.
func (c *Client) TasksFromPage(ctx context.Context, page *Page, defaultDueDate string) []types.Task {
	if page == nil || page.Body == "" {
		return nil
	}
	doc, err := markup.Parse(page.Body)
	if err != nil {
		c.logger.Error("failed to parse page body",
			zap.String("page_id", page.ID),
			zap.Error(err),
		)
		return nil
	}

	aggregation := c.aggregationSet()
	var tasks []types.Task
	for _, marker := range markup.Tasks(doc, aggregation) {
		task := types.Task{
			PageID:          page.ID,
			PageTitle:       page.Title,
			PageURL:         page.WebURL,
			TaskID:          marker.ID,
			Summary:         marker.Summary(),
			Status:          marker.Status,
			DueDate:         marker.DueDate(),
			PageVersion:     page.Version,
			PageVersionBy:   page.VersionBy,
			PageVersionWhen: page.VersionWhen,
			Context:         markup.TaskContext(marker.Node),
		}
		if task.DueDate == "" {
			task.DueDate = defaultDueDate
		}
		if key := marker.AssigneeKey(); key != "" {
			if username, ok := c.UsernameByKey(ctx, key); ok {
				task.Assignee = username
			}
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// RewritePageWithIssueLinks replaces the mapped task markers on a page with
// issue-reference macros in a single update. Reports false when nothing was
// replaced or the update failed.
func (c *Client) RewritePageWithIssueLinks(ctx context.Context, pageID string, mappings []types.Mapping) bool {
	page, ok := c.GetPage(ctx, pageID, 0)
	if !ok {
		c.logger.Error("could not retrieve page for rewrite", zap.String("page_id", pageID))
		return false
	}
	doc, err := markup.Parse(page.Body)
	if err != nil {
		c.logger.Error("failed to parse page body for rewrite",
			zap.String("page_id", pageID),
			zap.Error(err),
		)
		return false
	}

	byTaskID := make(map[string]string, len(mappings))
	for _, m := range mappings {
		byTaskID[m.TaskID] = m.IssueKey
	}

	if !markup.ReplaceTasks(doc, byTaskID, c.cfg.JiraMacroServerName, c.cfg.JiraMacroServerID) {
		c.logger.Warn("no task markers were replaced, skipping page update",
			zap.String("page_id", pageID))
		return false
	}
	return c.UpdatePage(ctx, pageID, page.Title, doc.Render())
}

func (c *Client) aggregationSet() map[string]bool {
	set := make(map[string]bool, len(c.cfg.AggregationMacros))
	for _, name := range c.cfg.AggregationMacros {
		set[name] = true
	}
	return set
}
