// Package relink rewires existing issue-reference macros across a page
// hierarchy to point at the closest-matching issues under a new root
// tracker item.
package relink

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/jira"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/markup"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/sync"
	"github.com/tdnguyen0403/confluence-jira-task-sync/pkg/types"
)

// IssueSearcher is the slice of the Jira client the re-linker consumes.
type IssueSearcher interface {
	SearchIssues(ctx context.Context, jql string, fields ...string) []jira.Issue
	IssueTypeName(ctx context.Context, typeID string) (string, bool)
}

// Relinker replaces issue-reference macros across a hierarchy with the best
// matching issues under a new root item.
type Relinker struct {
	conf   sync.ConfluenceService
	jira   IssueSearcher
	cfg    config.Config
	logger *zap.Logger
}

// NewRelinker creates a Relinker.
func NewRelinker(conf sync.ConfluenceService, jiraSvc IssueSearcher, cfg config.Config, logger *zap.Logger) *Relinker {
	return &Relinker{conf: conf, jira: jiraSvc, cfg: cfg, logger: logger}
}

// Run relinks every page under rootURL against the issues related to
// newRootKey. Pages with zero replacements are not rewritten.
func (r *Relinker) Run(ctx context.Context, rootURL, newRootKey string) ([]types.PageRelinkResult, error) {
	rootID, ok := r.conf.PageIDFromURL(ctx, rootURL)
	if !ok {
		return nil, fmt.Errorf("%w: could not resolve page URL %s", sync.ErrInvalidInput, rootURL)
	}
	pageIDs := append([]string{rootID}, r.conf.Descendants(ctx, rootID)...)
	r.logger.Info("relinking hierarchy",
		zap.String("root_id", rootID),
		zap.String("new_root_key", newRootKey),
		zap.Int("page_count", len(pageIDs)),
	)

	candidates := r.candidateIssues(ctx, newRootKey)
	if len(candidates) == 0 {
		r.logger.Warn("no candidate issues under new root, nothing to relink",
			zap.String("new_root_key", newRootKey))
		return nil, nil
	}

	var results []types.PageRelinkResult
	for _, pageID := range pageIDs {
		if res, ok := r.relinkPage(ctx, pageID, candidates, newRootKey); ok {
			results = append(results, res)
		}
	}
	return results, nil
}

// candidateIssues fetches all issues of the configured parent types related
// to the new root item.
func (r *Relinker) candidateIssues(ctx context.Context, rootKey string) []jira.Issue {
	typeIDs := make(map[string]bool, len(r.cfg.ParentIssueTypes))
	var typeNames []string
	for _, id := range r.cfg.ParentIssueTypes {
		typeIDs[id] = true
		if name, ok := r.jira.IssueTypeName(ctx, id); ok {
			typeNames = append(typeNames, fmt.Sprintf("%q", name))
		}
	}
	if len(typeNames) == 0 {
		return nil
	}
	sort.Strings(typeNames)

	jql := fmt.Sprintf("issuetype in (%s) AND issue in relation('%s', '', 'all')",
		strings.Join(typeNames, ", "), rootKey)
	found := r.jira.SearchIssues(ctx, jql, "key", "issuetype", "summary")

	// The relation clause can surface other types; keep only the targets.
	out := found[:0]
	for _, iss := range found {
		if typeIDs[iss.TypeID] {
			out = append(out, iss)
		}
	}
	return out
}

func (r *Relinker) relinkPage(ctx context.Context, pageID string, candidates []jira.Issue, newRootKey string) (types.PageRelinkResult, bool) {
	page, ok := r.conf.GetPage(ctx, pageID, 0)
	if !ok || page.Body == "" {
		return types.PageRelinkResult{}, false
	}
	doc, err := markup.Parse(page.Body)
	if err != nil {
		r.logger.Error("failed to parse page body for relinking",
			zap.String("page_id", pageID),
			zap.Error(err),
		)
		return types.PageRelinkResult{}, false
	}

	aggregation := make(map[string]bool, len(r.cfg.AggregationMacros))
	for _, name := range r.cfg.AggregationMacros {
		aggregation[name] = true
	}
	macros := markup.IssueMacros(doc, aggregation)
	if len(macros) == 0 {
		return types.PageRelinkResult{}, false
	}

	existing := r.existingIssues(ctx, macros)

	var replaced []string
	for _, macro := range macros {
		old, ok := existing[macro.Key]
		if !ok {
			r.logger.Warn("could not resolve referenced issue, skipping macro",
				zap.String("issue_key", macro.Key),
				zap.String("page_id", pageID),
			)
			continue
		}
		best, ok := bestMatch(old, candidates, r.cfg.FuzzyThreshold)
		if !ok {
			continue
		}
		r.logger.Info("replacing issue macro",
			zap.String("page_id", pageID),
			zap.String("old_key", macro.Key),
			zap.String("new_key", best.Key),
		)
		macro.Node.ReplaceWith(markup.BuildIssueMacro(
			r.cfg.JiraMacroServerName, r.cfg.JiraMacroServerID, best.Key))
		replaced = append(replaced, best.Key)
	}

	if len(replaced) == 0 {
		return types.PageRelinkResult{}, false
	}
	if !r.conf.UpdatePage(ctx, pageID, page.Title, doc.Render()) {
		r.logger.Error("failed to update relinked page", zap.String("page_id", pageID))
		return types.PageRelinkResult{}, false
	}
	return types.PageRelinkResult{
		PageID:        pageID,
		PageTitle:     page.Title,
		NewIssueKeys:  replaced,
		ProjectLinked: newRootKey,
	}, true
}

// existingIssues bulk-fetches type and summary for the issues the page's
// macros currently reference.
func (r *Relinker) existingIssues(ctx context.Context, macros []markup.IssueMacro) map[string]jira.Issue {
	keySet := make(map[string]bool)
	var keys []string
	for _, m := range macros {
		if !keySet[m.Key] {
			keySet[m.Key] = true
			keys = append(keys, m.Key)
		}
	}
	jql := fmt.Sprintf("issue in (%s)", strings.Join(keys, ","))
	out := make(map[string]jira.Issue)
	for _, iss := range r.jira.SearchIssues(ctx, jql, "issuetype", "summary") {
		out[iss.Key] = iss
	}
	return out
}

// bestMatch selects the candidate with the old issue's type and the highest
// summary similarity at or above threshold. Two empty summaries with a
// matching type count as a perfect match.
func bestMatch(old jira.Issue, candidates []jira.Issue, threshold float64) (jira.Issue, bool) {
	var best jira.Issue
	highest := -1.0
	for _, cand := range candidates {
		if cand.TypeID != old.TypeID {
			continue
		}
		switch {
		case old.Summary != "" && cand.Summary != "":
			score := similarity(old.Summary, cand.Summary)
			if score >= threshold && score > highest {
				highest = score
				best = cand
			}
		case old.Summary == "" && cand.Summary == "" && highest < 1.0:
			highest = 1.0
			best = cand
		}
	}
	return best, highest >= 0
}

// similarity is a normalized edit-distance ratio over lowercased summaries.
func similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
