package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/confluence"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/jira"
)

type fakePages map[string]string // page id -> body

func (f fakePages) GetPage(ctx context.Context, pageID string, version int) (*confluence.Page, bool) {
	body, ok := f[pageID]
	if !ok {
		return nil, false
	}
	return &confluence.Page{ID: pageID, Title: "Page " + pageID, Body: body}, true
}

type fakeIssues map[string]jira.Issue

func (f fakeIssues) GetIssue(ctx context.Context, key string, fields ...string) (jira.Issue, bool) {
	iss, ok := f[key]
	return iss, ok
}

func issueMacro(key string) string {
	return `<ac:structured-macro ac:name="jira"><ac:parameter ac:name="key">` + key + `</ac:parameter></ac:structured-macro>`
}

func resolverConfig() config.Config {
	return config.Config{
		ParentIssueTypes:  map[string]string{"Work Package": "10100", "Risk": "11404"},
		AggregationMacros: []string{"jira", "include", "excerpt-include"},
	}
}

func TestFindParentOnPage(t *testing.T) {
	pages := fakePages{
		"100": `<p>intro</p>` + issueMacro("TASK-5") + issueMacro("WP-1"),
	}
	issues := fakeIssues{
		"TASK-5": {Key: "TASK-5", TypeID: "10002"},
		"WP-1":   {Key: "WP-1", TypeID: "10100", Assignee: "lead"},
	}

	f := NewFinder(pages, issues, resolverConfig(), zaptest.NewLogger(t))
	parent, ok := f.FindParentOnPage(context.Background(), "100")
	require.True(t, ok)
	assert.Equal(t, "WP-1", parent.Key)
	assert.Equal(t, "lead", parent.Assignee)
}

func TestFindParentSkipsAggregationMacros(t *testing.T) {
	// The work package reference sits inside an include macro, so its content
	// belongs to another page and must not be picked as parent.
	pages := fakePages{
		"100": `<ac:structured-macro ac:name="include"><ac:rich-text-body>` +
			issueMacro("WP-1") +
			`</ac:rich-text-body></ac:structured-macro>`,
	}
	issues := fakeIssues{"WP-1": {Key: "WP-1", TypeID: "10100"}}

	f := NewFinder(pages, issues, resolverConfig(), zaptest.NewLogger(t))
	_, ok := f.FindParentOnPage(context.Background(), "100")
	assert.False(t, ok)
}

func TestFindParentAbsenceIsNotAnError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no macros at all", `<p>just text</p>`},
		{"only non-parent types", issueMacro("TASK-5")},
		{"unresolvable issue key", issueMacro("GONE-1")},
	}
	issues := fakeIssues{"TASK-5": {Key: "TASK-5", TypeID: "10002"}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFinder(fakePages{"100": tt.body}, issues, resolverConfig(), zaptest.NewLogger(t))
			_, ok := f.FindParentOnPage(context.Background(), "100")
			assert.False(t, ok)
		})
	}
}

func TestFindParentUnfetchablePage(t *testing.T) {
	f := NewFinder(fakePages{}, fakeIssues{}, resolverConfig(), zaptest.NewLogger(t))
	_, ok := f.FindParentOnPage(context.Background(), "404")
	assert.False(t, ok)
}
