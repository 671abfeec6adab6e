package sync

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/pkg/types"
)

// UndoOrchestrator reverses a prior sync run: created issues transition back
// to the undo status and touched pages roll back to their pre-sync revision.
type UndoOrchestrator struct {
	conf   ConfluenceService
	jira   JiraService
	cfg    config.Config
	logger *zap.Logger
}

// NewUndoOrchestrator creates an undo orchestrator.
func NewUndoOrchestrator(conf ConfluenceService, jiraSvc JiraService, cfg config.Config, logger *zap.Logger) *UndoOrchestrator {
	return &UndoOrchestrator{conf: conf, jira: jiraSvc, cfg: cfg, logger: logger}
}

// Run reverses the given undo items. Both phases run to completion
// regardless of individual failures; partial success is an expected
// terminal state, summarized per action.
func (u *UndoOrchestrator) Run(ctx context.Context, items []types.UndoItem) (*types.UndoResult, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no undo items provided", ErrInvalidInput)
	}

	issueKeys, rollbacks := parseUndoItems(u.logger, items)
	if len(issueKeys) == 0 && len(rollbacks) == 0 {
		return nil, fmt.Errorf("%w: no valid undo actions found", ErrMissingRequiredData)
	}

	result := &types.UndoResult{}
	for _, key := range issueKeys {
		result.Actions = append(result.Actions, u.transitionIssue(ctx, key))
	}

	pageIDs := make([]string, 0, len(rollbacks))
	for pageID := range rollbacks {
		pageIDs = append(pageIDs, pageID)
	}
	sort.Strings(pageIDs)
	for _, pageID := range pageIDs {
		result.Actions = append(result.Actions, u.rollbackPage(ctx, pageID, rollbacks[pageID]))
	}

	oks := make([]bool, 0, len(result.Actions))
	for _, a := range result.Actions {
		oks = append(oks, a.Success)
	}
	result.OverallStatus = types.AggregateStatus(oks)
	return result, nil
}

// parseUndoItems collects the distinct issue keys to revert and the earliest
// pre-sync revision per page. Later recorded revisions for the same page are
// artifacts of cascading edits during the sync run and must not overwrite
// the rollback target.
func parseUndoItems(logger *zap.Logger, items []types.UndoItem) ([]string, map[string]int) {
	keySet := make(map[string]bool)
	rollbacks := make(map[string]int)
	for _, item := range items {
		if item.IssueKey != "" {
			keySet[item.IssueKey] = true
		}
		if item.PageID == "" || item.PageVersion <= 0 {
			logger.Warn("undo item missing page id or revision, skipping rollback for it",
				zap.String("page_id", item.PageID),
				zap.String("issue_key", item.IssueKey),
			)
			continue
		}
		if current, seen := rollbacks[item.PageID]; !seen || item.PageVersion < current {
			rollbacks[item.PageID] = item.PageVersion
		}
	}

	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, rollbacks
}

func (u *UndoOrchestrator) transitionIssue(ctx context.Context, key string) types.UndoActionResult {
	target := u.cfg.UndoStatus
	if u.jira.TransitionIssue(ctx, key, target) {
		return types.UndoActionResult{
			ActionType: types.ActionJiraTransition,
			TargetID:   key,
			Success:    true,
			Message:    fmt.Sprintf("transitioned to %q", target),
		}
	}
	msg := fmt.Sprintf("failed to transition issue %s to %q", key, target)
	u.logger.Error("undo transition failed", zap.String("issue_key", key))
	return types.UndoActionResult{
		ActionType:   types.ActionJiraTransition,
		TargetID:     key,
		Success:      false,
		Message:      msg,
		ErrorMessage: msg,
	}
}

func (u *UndoOrchestrator) rollbackPage(ctx context.Context, pageID string, version int) types.UndoActionResult {
	u.logger.Info("rolling back page",
		zap.String("page_id", pageID),
		zap.Int("version", version),
	)

	historical, ok := u.conf.GetPage(ctx, pageID, version)
	if !ok || historical.Body == "" {
		msg := fmt.Sprintf("could not fetch historical body of page %s at version %d", pageID, version)
		u.logger.Error("undo rollback skipped",
			zap.String("page_id", pageID),
			zap.Int("version", version),
		)
		return types.UndoActionResult{
			ActionType:   types.ActionConfluenceRollback,
			TargetID:     pageID,
			Success:      false,
			Message:      msg,
			ErrorMessage: msg,
		}
	}

	title := historical.Title
	if current, ok := u.conf.GetPage(ctx, pageID, 0); ok {
		title = current.Title
	}

	if u.conf.UpdatePage(ctx, pageID, title, historical.Body) {
		return types.UndoActionResult{
			ActionType: types.ActionConfluenceRollback,
			TargetID:   pageID,
			Success:    true,
			Message:    fmt.Sprintf("rolled back page %q to version %d", title, version),
		}
	}
	msg := fmt.Sprintf("update failed while rolling back page %s to version %d", pageID, version)
	u.logger.Error("undo rollback failed",
		zap.String("page_id", pageID),
		zap.Int("version", version),
	)
	return types.UndoActionResult{
		ActionType:   types.ActionConfluenceRollback,
		TargetID:     pageID,
		Success:      false,
		Message:      msg,
		ErrorMessage: msg,
	}
}
