package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/confluence"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/jira"
	"github.com/tdnguyen0403/confluence-jira-task-sync/pkg/types"
)

type fakeConfluence struct {
	pages       map[string]*confluence.Page // keyed by page id
	pageIDs     map[string]string           // url -> id
	children    map[string][]string
	tasks       map[string][]types.Task
	rewrites    map[string][]types.Mapping
	failRewrite bool
}

func (f *fakeConfluence) PageIDFromURL(ctx context.Context, pageURL string) (string, bool) {
	id, ok := f.pageIDs[pageURL]
	return id, ok
}

func (f *fakeConfluence) Descendants(ctx context.Context, rootID string) []string {
	return f.children[rootID]
}

func (f *fakeConfluence) GetPage(ctx context.Context, pageID string, version int) (*confluence.Page, bool) {
	p, ok := f.pages[pageID]
	return p, ok
}

func (f *fakeConfluence) TasksFromPage(ctx context.Context, page *confluence.Page, defaultDueDate string) []types.Task {
	return f.tasks[page.ID]
}

func (f *fakeConfluence) UpdatePage(ctx context.Context, pageID, title, body string) bool {
	return true
}

func (f *fakeConfluence) RewritePageWithIssueLinks(ctx context.Context, pageID string, mappings []types.Mapping) bool {
	if f.failRewrite {
		return false
	}
	if f.rewrites == nil {
		f.rewrites = make(map[string][]types.Mapping)
	}
	f.rewrites[pageID] = append(f.rewrites[pageID], mappings...)
	return true
}

type fakeJira struct {
	nextKey     int
	created     []types.Task
	transitions map[string][]string
	failCreate  bool
}

func (f *fakeJira) CreateIssue(ctx context.Context, task types.Task, parentKey string) (string, bool) {
	if f.failCreate {
		return "", false
	}
	f.nextKey++
	f.created = append(f.created, task)
	return fmt.Sprintf("PROJ-%d", f.nextKey), true
}

func (f *fakeJira) TransitionIssue(ctx context.Context, key, targetStatus string) bool {
	if f.transitions == nil {
		f.transitions = make(map[string][]string)
	}
	f.transitions[key] = append(f.transitions[key], targetStatus)
	return true
}

type fakeFinder struct {
	parents map[string]jira.Issue // page id -> parent
}

func (f *fakeFinder) FindParentOnPage(ctx context.Context, pageID string) (jira.Issue, bool) {
	p, ok := f.parents[pageID]
	return p, ok
}

func testConfig() config.Config {
	return config.Config{
		NewTaskStatus:    "Backlog",
		DoneStatus:       "Done",
		UndoStatus:       "Backlog",
		DiscoveryWorkers: 2,
		ProductionMode:   true,
	}
}

func task(pageID, taskID, summary string) types.Task {
	return types.Task{PageID: pageID, TaskID: taskID, Summary: summary, Status: types.TaskIncomplete}
}

func TestRunCreatesIssuesAndRewritesOncePerPage(t *testing.T) {
	conf := &fakeConfluence{
		pageIDs:  map[string]string{"https://wiki/root": "100"},
		children: map[string][]string{"100": {"101"}},
		pages: map[string]*confluence.Page{
			"100": {ID: "100", Title: "Root"},
			"101": {ID: "101", Title: "Child"},
		},
		tasks: map[string][]types.Task{
			"100": {task("100", "1", "first"), task("100", "2", "second")},
			"101": {task("101", "1", "third")},
		},
	}
	jiraSvc := &fakeJira{}
	finder := &fakeFinder{parents: map[string]jira.Issue{
		"100": {Key: "WP-1"},
		"101": {Key: "WP-2"},
	}}

	o := NewOrchestrator(conf, jiraSvc, finder, testConfig(), zaptest.NewLogger(t))
	result, err := o.Run(context.Background(), Request{PageURLs: []string{"https://wiki/root"}})
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, result.OverallStatus)
	assert.Equal(t, types.StatusSuccess, result.CreationStatus)
	assert.Equal(t, types.StatusSuccess, result.UpdateStatus)
	require.Len(t, result.Creations, 3)
	for _, c := range result.Creations {
		assert.Equal(t, types.OutcomeSuccess, c.Status)
		assert.True(t, c.Success)
	}

	// Each page is rewritten exactly once with all of its mappings.
	require.Len(t, result.PageUpdates, 2)
	assert.Len(t, conf.rewrites["100"], 2)
	assert.Len(t, conf.rewrites["101"], 1)
}

func TestRunWithUnsetWorkerCount(t *testing.T) {
	cfg := testConfig()
	cfg.DiscoveryWorkers = 0

	conf := &fakeConfluence{
		pageIDs: map[string]string{"https://wiki/root": "100"},
		pages:   map[string]*confluence.Page{"100": {ID: "100", Title: "Root"}},
		tasks:   map[string][]types.Task{"100": {task("100", "1", "only")}},
	}
	jiraSvc := &fakeJira{}
	finder := &fakeFinder{parents: map[string]jira.Issue{"100": {Key: "WP-1"}}}

	o := NewOrchestrator(conf, jiraSvc, finder, cfg, zaptest.NewLogger(t))
	result, err := o.Run(context.Background(), Request{PageURLs: []string{"https://wiki/root"}})
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, result.OverallStatus)
}

func TestRunSkipVocabulary(t *testing.T) {
	conf := &fakeConfluence{
		pageIDs: map[string]string{"https://wiki/root": "100"},
		pages:   map[string]*confluence.Page{"100": {ID: "100", Title: "Root"}},
		tasks: map[string][]types.Task{
			"100": {task("100", "1", ""), task("100", "2", "orphan")},
		},
	}
	jiraSvc := &fakeJira{}
	finder := &fakeFinder{} // no parents anywhere

	o := NewOrchestrator(conf, jiraSvc, finder, testConfig(), zaptest.NewLogger(t))
	result, err := o.Run(context.Background(), Request{PageURLs: []string{"https://wiki/root"}})
	require.NoError(t, err)

	require.Len(t, result.Creations, 2)
	assert.Equal(t, types.OutcomeEmptyTask, result.Creations[0].Status)
	assert.Equal(t, types.OutcomeNoWorkPackage, result.Creations[1].Status)
	assert.Empty(t, jiraSvc.created)
	assert.Empty(t, result.PageUpdates)
	assert.Equal(t, types.StatusFailed, result.CreationStatus)
	assert.Equal(t, types.StatusSkipped, result.UpdateStatus)
}

func TestRunCreationFailureAbortsRun(t *testing.T) {
	conf := &fakeConfluence{
		pageIDs: map[string]string{"https://wiki/root": "100"},
		pages:   map[string]*confluence.Page{"100": {ID: "100", Title: "Root"}},
		tasks: map[string][]types.Task{
			"100": {task("100", "1", "doomed"), task("100", "2", "never reached")},
		},
	}
	jiraSvc := &fakeJira{failCreate: true}
	finder := &fakeFinder{parents: map[string]jira.Issue{"100": {Key: "WP-1"}}}

	o := NewOrchestrator(conf, jiraSvc, finder, testConfig(), zaptest.NewLogger(t))
	_, err := o.Run(context.Background(), Request{PageURLs: []string{"https://wiki/root"}})

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "1", syncErr.TaskID)
	assert.Empty(t, conf.rewrites, "no page may be rewritten after an aborted run")
}

func TestRunUnresolvableRootIsSkipped(t *testing.T) {
	conf := &fakeConfluence{
		pageIDs: map[string]string{"https://wiki/good": "100"},
		pages:   map[string]*confluence.Page{"100": {ID: "100", Title: "Root"}},
		tasks:   map[string][]types.Task{"100": {task("100", "1", "only")}},
	}
	jiraSvc := &fakeJira{}
	finder := &fakeFinder{parents: map[string]jira.Issue{"100": {Key: "WP-1"}}}

	o := NewOrchestrator(conf, jiraSvc, finder, testConfig(), zaptest.NewLogger(t))
	result, err := o.Run(context.Background(), Request{
		PageURLs: []string{"https://wiki/missing", "https://wiki/good"},
	})
	require.NoError(t, err)
	require.Len(t, result.Creations, 1)
	assert.Equal(t, types.OutcomeSuccess, result.Creations[0].Status)
}

func TestRunNoResolvableRoots(t *testing.T) {
	o := NewOrchestrator(&fakeConfluence{}, &fakeJira{}, &fakeFinder{}, testConfig(), zaptest.NewLogger(t))

	_, err := o.Run(context.Background(), Request{PageURLs: []string{"https://wiki/missing"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = o.Run(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRunCompletedTaskTransitionsToDone(t *testing.T) {
	done := task("100", "1", "already finished")
	done.Status = types.TaskComplete

	conf := &fakeConfluence{
		pageIDs: map[string]string{"https://wiki/root": "100"},
		pages:   map[string]*confluence.Page{"100": {ID: "100", Title: "Root"}},
		tasks:   map[string][]types.Task{"100": {done}},
	}
	jiraSvc := &fakeJira{}
	finder := &fakeFinder{parents: map[string]jira.Issue{"100": {Key: "WP-1"}}}

	o := NewOrchestrator(conf, jiraSvc, finder, testConfig(), zaptest.NewLogger(t))
	result, err := o.Run(context.Background(), Request{PageURLs: []string{"https://wiki/root"}})
	require.NoError(t, err)

	require.Len(t, result.Creations, 1)
	assert.Equal(t, types.OutcomeCompletedCreated, result.Creations[0].Status)
	assert.Equal(t, []string{"Done"}, jiraSvc.transitions["PROJ-1"])
}

func TestRunNonProductionTransitionsNewTasks(t *testing.T) {
	cfg := testConfig()
	cfg.ProductionMode = false

	conf := &fakeConfluence{
		pageIDs: map[string]string{"https://wiki/root": "100"},
		pages:   map[string]*confluence.Page{"100": {ID: "100", Title: "Root"}},
		tasks:   map[string][]types.Task{"100": {task("100", "1", "new")}},
	}
	jiraSvc := &fakeJira{}
	finder := &fakeFinder{parents: map[string]jira.Issue{"100": {Key: "WP-1"}}}

	o := NewOrchestrator(conf, jiraSvc, finder, cfg, zaptest.NewLogger(t))
	_, err := o.Run(context.Background(), Request{PageURLs: []string{"https://wiki/root"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Backlog"}, jiraSvc.transitions["PROJ-1"])
}

func TestRunAssigneeInheritedFromParent(t *testing.T) {
	conf := &fakeConfluence{
		pageIDs: map[string]string{"https://wiki/root": "100"},
		pages:   map[string]*confluence.Page{"100": {ID: "100", Title: "Root"}},
		tasks:   map[string][]types.Task{"100": {task("100", "1", "unassigned")}},
	}
	jiraSvc := &fakeJira{}
	finder := &fakeFinder{parents: map[string]jira.Issue{
		"100": {Key: "WP-1", Assignee: "lead.engineer"},
	}}

	o := NewOrchestrator(conf, jiraSvc, finder, testConfig(), zaptest.NewLogger(t))
	_, err := o.Run(context.Background(), Request{PageURLs: []string{"https://wiki/root"}})
	require.NoError(t, err)

	require.Len(t, jiraSvc.created, 1)
	assert.Equal(t, "lead.engineer", jiraSvc.created[0].Assignee)
}

func TestRunFailedRewriteYieldsPartialSuccess(t *testing.T) {
	conf := &fakeConfluence{
		pageIDs:     map[string]string{"https://wiki/root": "100"},
		pages:       map[string]*confluence.Page{"100": {ID: "100", Title: "Root"}},
		tasks:       map[string][]types.Task{"100": {task("100", "1", "x")}},
		failRewrite: true,
	}
	jiraSvc := &fakeJira{}
	finder := &fakeFinder{parents: map[string]jira.Issue{"100": {Key: "WP-1"}}}

	o := NewOrchestrator(conf, jiraSvc, finder, testConfig(), zaptest.NewLogger(t))
	result, err := o.Run(context.Background(), Request{PageURLs: []string{"https://wiki/root"}})
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, result.CreationStatus)
	assert.Equal(t, types.StatusFailed, result.UpdateStatus)
	assert.Equal(t, types.StatusPartialSuccess, result.OverallStatus)
}
