// Package sync drives the end-to-end synchronization of Confluence task
// markers with Jira issues, and the reversal of a prior run.
package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/confluence"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/jira"
	"github.com/tdnguyen0403/confluence-jira-task-sync/pkg/types"
)

// ConfluenceService is the slice of the Confluence client the orchestrators
// consume.
type ConfluenceService interface {
	PageIDFromURL(ctx context.Context, pageURL string) (string, bool)
	Descendants(ctx context.Context, rootID string) []string
	GetPage(ctx context.Context, pageID string, version int) (*confluence.Page, bool)
	TasksFromPage(ctx context.Context, page *confluence.Page, defaultDueDate string) []types.Task
	UpdatePage(ctx context.Context, pageID, title, body string) bool
	RewritePageWithIssueLinks(ctx context.Context, pageID string, mappings []types.Mapping) bool
}

// JiraService is the slice of the Jira client the orchestrators consume.
type JiraService interface {
	CreateIssue(ctx context.Context, task types.Task, parentKey string) (string, bool)
	TransitionIssue(ctx context.Context, key, targetStatus string) bool
}

// ParentFinder resolves the parent work item referenced on a page.
type ParentFinder interface {
	FindParentOnPage(ctx context.Context, pageID string) (jira.Issue, bool)
}

// RequestContext carries per-request settings for a sync run.
type RequestContext struct {
	RequestUser   string `json:"request_user"`
	DaysToDueDate int    `json:"days_to_due_date"`
}

// Request is the input of one sync run.
type Request struct {
	PageURLs []string       `json:"confluence_page_urls" validate:"required,min=1,dive,url"`
	Context  RequestContext `json:"context"`
}

// Orchestrator coordinates extraction, parent resolution, issue creation and
// page rewriting for sync runs.
type Orchestrator struct {
	conf   ConfluenceService
	jira   JiraService
	finder ParentFinder
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(conf ConfluenceService, jiraSvc JiraService, finder ParentFinder, cfg config.Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		conf:   conf,
		jira:   jiraSvc,
		finder: finder,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Run executes one sync pass over the given root pages. Roots are processed
// independently: an unresolvable root is logged and skipped without
// aborting the others, but a failed issue creation aborts the whole run
// with a SyncError. All page rewrites happen once per page, after every
// task has been processed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*types.SyncResult, error) {
	if len(req.PageURLs) == 0 {
		return nil, fmt.Errorf("%w: no confluence_page_urls provided", ErrInvalidInput)
	}

	dueDate := o.cfg.DefaultDueDate(o.now(), req.Context.DaysToDueDate)

	var allTasks []types.Task
	resolvedRoots := 0
	for _, rootURL := range req.PageURLs {
		o.logger.Info("processing page hierarchy", zap.String("root_url", rootURL))
		rootID, ok := o.conf.PageIDFromURL(ctx, rootURL)
		if !ok {
			o.logger.Error("could not resolve root page, skipping hierarchy",
				zap.String("root_url", rootURL))
			continue
		}
		resolvedRoots++

		pageIDs := append([]string{rootID}, o.conf.Descendants(ctx, rootID)...)
		o.logger.Info("scanning pages for task markers",
			zap.String("root_id", rootID),
			zap.Int("page_count", len(pageIDs)),
		)
		allTasks = append(allTasks, o.collectTasks(ctx, pageIDs, dueDate)...)
	}
	if resolvedRoots == 0 {
		return nil, fmt.Errorf("%w: no root pages could be resolved", ErrInvalidInput)
	}

	result := &types.SyncResult{}
	pageOrder, mappings, err := o.processTasks(ctx, allTasks, req.Context.RequestUser, result)
	if err != nil {
		return nil, err
	}

	o.updatePages(ctx, pageOrder, mappings, result)

	creationOK := make([]bool, 0, len(result.Creations))
	for _, r := range result.Creations {
		creationOK = append(creationOK, r.Success)
	}
	updateOK := make([]bool, 0, len(result.PageUpdates))
	for _, r := range result.PageUpdates {
		updateOK = append(updateOK, r.Updated)
	}
	result.CreationStatus = types.AggregateStatus(creationOK)
	result.UpdateStatus = types.AggregateStatus(updateOK)
	result.OverallStatus = types.AggregateStatus(append(creationOK, updateOK...))
	return result, nil
}

// collectTasks extracts tasks from every page in the set. Page fetches fan
// out over a bounded group since extraction only reads; the combined list
// preserves page order.
func (o *Orchestrator) collectTasks(ctx context.Context, pageIDs []string, dueDate string) []types.Task {
	perPage := make([][]types.Task, len(pageIDs))
	g, gctx := errgroup.WithContext(ctx)
	workers := o.cfg.DiscoveryWorkers
	if workers <= 0 {
		workers = 10
	}
	g.SetLimit(workers)
	for i, pageID := range pageIDs {
		i, pageID := i, pageID
		g.Go(func() error {
			page, ok := o.conf.GetPage(gctx, pageID, 0)
			if !ok {
				o.logger.Error("could not fetch page for extraction",
					zap.String("page_id", pageID))
				return nil
			}
			perPage[i] = o.conf.TasksFromPage(gctx, page, dueDate)
			return nil
		})
	}
	_ = g.Wait()

	var tasks []types.Task
	for _, pt := range perPage {
		tasks = append(tasks, pt...)
	}
	return tasks
}

// processTasks creates a Jira issue per task and accumulates the page
// rewrite mappings, grouped by source page in first-seen order.
func (o *Orchestrator) processTasks(ctx context.Context, tasks []types.Task, requestUser string, result *types.SyncResult) ([]string, map[string][]types.Mapping, error) {
	var pageOrder []string
	mappings := make(map[string][]types.Mapping)

	for _, task := range tasks {
		res, err := o.processTask(ctx, task, requestUser)
		result.Creations = append(result.Creations, res)
		if err != nil {
			return nil, nil, err
		}
		if res.Success && res.IssueKey != "" {
			if _, seen := mappings[task.PageID]; !seen {
				pageOrder = append(pageOrder, task.PageID)
			}
			mappings[task.PageID] = append(mappings[task.PageID], types.Mapping{
				TaskID:   task.TaskID,
				IssueKey: res.IssueKey,
			})
		}
	}
	return pageOrder, mappings, nil
}

func (o *Orchestrator) processTask(ctx context.Context, task types.Task, requestUser string) (types.CreationResult, error) {
	res := types.CreationResult{Task: task, RequestUser: requestUser}

	if task.Summary == "" {
		o.logger.Warn("skipping empty task", zap.String("page_id", task.PageID))
		res.Status = types.OutcomeEmptyTask
		return res, nil
	}

	parent, ok := o.finder.FindParentOnPage(ctx, task.PageID)
	if !ok {
		o.logger.Warn("no work package found for task",
			zap.String("task_id", task.TaskID),
			zap.String("page_id", task.PageID),
		)
		res.Status = types.OutcomeNoWorkPackage
		return res, nil
	}
	res.ParentKey = parent.Key

	// A marker without an assignee inherits the parent work item's.
	if task.Assignee == "" && parent.Assignee != "" {
		task.Assignee = parent.Assignee
		o.logger.Info("assigning task from parent work package",
			zap.String("task_id", task.TaskID),
			zap.String("assignee", task.Assignee),
		)
	}

	issueKey, ok := o.jira.CreateIssue(ctx, task, parent.Key)
	if !ok {
		res.Status = types.OutcomeCreationFailed
		res.ErrorMessage = fmt.Sprintf("could not create issue for task %s under %s", task.TaskID, parent.Key)
		// A creation failure is fatal to the run: continuing silently after
		// a partial creation risks inconsistent linkage between the two
		// systems.
		return res, &SyncError{TaskID: task.TaskID, Summary: task.Summary, Reason: res.ErrorMessage}
	}
	res.IssueKey = issueKey
	res.Status = types.OutcomeSuccess
	res.Success = true

	switch {
	case task.Status == types.TaskComplete:
		if o.jira.TransitionIssue(ctx, issueKey, o.cfg.DoneStatus) {
			res.Status = types.OutcomeCompletedCreated
		} else {
			o.logger.Warn("could not transition completed task's issue",
				zap.String("issue_key", issueKey),
				zap.String("target_status", o.cfg.DoneStatus),
			)
		}
	case !o.cfg.ProductionMode:
		if !o.jira.TransitionIssue(ctx, issueKey, o.cfg.NewTaskStatus) {
			o.logger.Warn("could not transition new issue to development status",
				zap.String("issue_key", issueKey),
				zap.String("target_status", o.cfg.NewTaskStatus),
			)
		}
	}
	return res, nil
}

// updatePages rewrites each touched page once with all of its accumulated
// mappings, never one rewrite per task.
func (o *Orchestrator) updatePages(ctx context.Context, pageOrder []string, mappings map[string][]types.Mapping, result *types.SyncResult) {
	for _, pageID := range pageOrder {
		batch := mappings[pageID]
		upd := types.PageUpdateResult{PageID: pageID, PageTitle: "N/A"}
		if page, ok := o.conf.GetPage(ctx, pageID, 0); ok {
			upd.PageTitle = page.Title
		}
		if o.conf.RewritePageWithIssueLinks(ctx, pageID, batch) {
			upd.Updated = true
			for _, m := range batch {
				upd.IssueKeys = append(upd.IssueKeys, m.IssueKey)
			}
		} else {
			upd.ErrorMessage = fmt.Sprintf("page %s was not updated", pageID)
			o.logger.Error("failed to rewrite page with issue links",
				zap.String("page_id", pageID))
		}
		result.PageUpdates = append(result.PageUpdates, upd)
	}
}
