// Package jira wraps all Jira operations behind the two-tier remote call
// policy: the andygrunwald/go-jira client is tried first, with a direct REST
// call reconstructing the same semantics on any failure.
package jira

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	gojira "github.com/andygrunwald/go-jira"
	"github.com/trivago/tgo/tcontainer"
	"go.uber.org/zap"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/restclient"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/safecall"
	"github.com/tdnguyen0403/confluence-jira-task-sync/pkg/types"
)

// Issue is the subset of a Jira issue the orchestrators work with. Both
// tiers populate it identically.
type Issue struct {
	Key      string `json:"key"`
	Summary  string `json:"-"`
	TypeID   string `json:"-"`
	TypeName string `json:"-"`
	Assignee string `json:"-"`
	Reporter string `json:"-"`
}

// restIssue mirrors the REST response shape for the fallback tier.
type restIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		IssueType struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"issuetype"`
		Assignee *struct {
			Name string `json:"name"`
		} `json:"assignee"`
		Reporter *struct {
			Name string `json:"name"`
		} `json:"reporter"`
	} `json:"fields"`
}

func (r restIssue) toIssue() Issue {
	iss := Issue{
		Key:      r.Key,
		Summary:  r.Fields.Summary,
		TypeID:   r.Fields.IssueType.ID,
		TypeName: r.Fields.IssueType.Name,
	}
	if r.Fields.Assignee != nil {
		iss.Assignee = r.Fields.Assignee.Name
	}
	if r.Fields.Reporter != nil {
		iss.Reporter = r.Fields.Reporter.Name
	}
	return iss
}

// Client is the resilient Jira service.
type Client struct {
	api    *gojira.Client
	rc     *restclient.Client
	cfg    config.Config
	logger *zap.Logger
}

// NewClient creates the Jira service. The primary client authenticates with
// a personal access token, matching the fallback tier's bearer header.
func NewClient(cfg config.Config, rc *restclient.Client, logger *zap.Logger) (*Client, error) {
	tp := gojira.PATAuthTransport{Token: cfg.JiraToken}
	api, err := gojira.NewClient(tp.Client(), cfg.JiraURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}
	return &Client{api: api, rc: rc, cfg: cfg, logger: logger}, nil
}

// GetIssue fetches an issue with the given fields. Absence means both tiers
// failed.
func (c *Client) GetIssue(ctx context.Context, key string, fields ...string) (Issue, bool) {
	r := safecall.Get(c.logger, "jira.get_issue", key,
		func() (Issue, error) {
			opts := &gojira.GetQueryOptions{}
			if len(fields) > 0 {
				opts.Fields = strings.Join(fields, ",")
			}
			iss, _, err := c.api.Issue.GetWithContext(ctx, key, opts)
			if err != nil {
				return Issue{}, err
			}
			return fromGoJira(iss), nil
		},
		func() (Issue, error) {
			params := url.Values{}
			if len(fields) > 0 {
				params.Set("fields", strings.Join(fields, ","))
			}
			var out restIssue
			if err := c.rc.GetJSON(ctx, "/rest/api/2/issue/"+key, params, &out); err != nil {
				return Issue{}, err
			}
			return out.toIssue(), nil
		},
	)
	return r.Value, r.OK()
}

// CreateIssue creates a Jira task for a Confluence task marker, linked under
// parentKey via the configured custom field. Returns the new issue key;
// absence means both tiers failed and callers decide whether that is fatal.
func (c *Client) CreateIssue(ctx context.Context, task types.Task, parentKey string) (string, bool) {
	projectKey := projectKeyFromIssue(parentKey)
	description := fmt.Sprintf(
		"Source Confluence Page: [%s|%s]", task.PageTitle, task.PageURL)
	if task.Context != "" {
		description += "\n\nContext:\n" + task.Context
	}

	fields := map[string]any{
		"project":               map[string]any{"key": projectKey},
		"issuetype":             map[string]any{"id": c.cfg.TaskIssueTypeID},
		"summary":               task.Summary,
		"description":           description,
		c.cfg.ParentLinkFieldID: parentKey,
	}
	if task.DueDate != "" {
		fields["duedate"] = task.DueDate
	}
	if task.Assignee != "" {
		fields["assignee"] = map[string]any{"name": task.Assignee}
	}

	r := safecall.Get(c.logger, "jira.create_issue", task.TaskID,
		func() (string, error) {
			unknowns := tcontainer.NewMarshalMap()
			unknowns[c.cfg.ParentLinkFieldID] = parentKey
			if task.DueDate != "" {
				unknowns["duedate"] = task.DueDate
			}
			issueFields := &gojira.IssueFields{
				Project:     gojira.Project{Key: projectKey},
				Type:        gojira.IssueType{ID: c.cfg.TaskIssueTypeID},
				Summary:     task.Summary,
				Description: description,
				Unknowns:    unknowns,
			}
			if task.Assignee != "" {
				issueFields.Assignee = &gojira.User{Name: task.Assignee}
			}
			created, _, err := c.api.Issue.CreateWithContext(ctx, &gojira.Issue{Fields: issueFields})
			if err != nil {
				return "", err
			}
			return created.Key, nil
		},
		func() (string, error) {
			var out struct {
				Key string `json:"key"`
			}
			payload := map[string]any{"fields": fields}
			if err := c.rc.PostJSON(ctx, "/rest/api/2/issue", payload, &out); err != nil {
				return "", err
			}
			if out.Key == "" {
				return "", fmt.Errorf("issue created without a key")
			}
			return out.Key, nil
		},
	)
	return r.Value, r.OK()
}

// TransitionIssue moves an issue to the named target status. The transition
// id is discovered from the issue's available transitions; an issue already
// in the target status counts as success.
func (c *Client) TransitionIssue(ctx context.Context, key, targetStatus string) bool {
	return safecall.Do(c.logger, "jira.transition_issue", key,
		func() error {
			transitions, _, err := c.api.Issue.GetTransitionsWithContext(ctx, key)
			if err != nil {
				return err
			}
			for _, t := range transitions {
				if strings.EqualFold(t.To.Name, targetStatus) || strings.EqualFold(t.Name, targetStatus) {
					_, err = c.api.Issue.DoTransitionWithContext(ctx, key, t.ID)
					return err
				}
			}
			return fmt.Errorf("transition to status %q not found for %s", targetStatus, key)
		},
		func() error {
			var listing struct {
				Transitions []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
					To   struct {
						Name string `json:"name"`
					} `json:"to"`
				} `json:"transitions"`
			}
			path := "/rest/api/2/issue/" + key + "/transitions"
			if err := c.rc.GetJSON(ctx, path, nil, &listing); err != nil {
				return err
			}
			for _, t := range listing.Transitions {
				if strings.EqualFold(t.To.Name, targetStatus) || strings.EqualFold(t.Name, targetStatus) {
					payload := map[string]any{"transition": map[string]any{"id": t.ID}}
					return c.rc.PostJSON(ctx, path, payload, nil)
				}
			}
			return fmt.Errorf("transition to status %q not found for %s", targetStatus, key)
		},
	)
}

// SearchIssues runs a JQL query and returns the matching issues. An empty
// slice means no matches or total failure; callers treat both as absence.
func (c *Client) SearchIssues(ctx context.Context, jql string, fields ...string) []Issue {
	r := safecall.Get(c.logger, "jira.search_issues", jql,
		func() ([]Issue, error) {
			opts := &gojira.SearchOptions{MaxResults: 200, Fields: fields}
			found, _, err := c.api.Issue.SearchWithContext(ctx, jql, opts)
			if err != nil {
				return nil, err
			}
			out := make([]Issue, 0, len(found))
			for i := range found {
				out = append(out, fromGoJira(&found[i]))
			}
			return out, nil
		},
		func() ([]Issue, error) {
			params := url.Values{}
			params.Set("jql", jql)
			params.Set("maxResults", "200")
			if len(fields) > 0 {
				params.Set("fields", strings.Join(fields, ","))
			}
			var out struct {
				Issues []restIssue `json:"issues"`
			}
			if err := c.rc.GetJSON(ctx, "/rest/api/2/search", params, &out); err != nil {
				return nil, err
			}
			issues := make([]Issue, 0, len(out.Issues))
			for _, ri := range out.Issues {
				issues = append(issues, ri.toIssue())
			}
			return issues, nil
		},
	)
	return r.Value
}

// IssueTypeName resolves an issue-type id to its display name.
func (c *Client) IssueTypeName(ctx context.Context, typeID string) (string, bool) {
	type issueType struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	r := safecall.Get(c.logger, "jira.issue_type", typeID,
		func() (string, error) {
			req, err := c.api.NewRequestWithContext(ctx, "GET", "rest/api/2/issuetype/"+typeID, nil)
			if err != nil {
				return "", err
			}
			var out issueType
			if _, err := c.api.Do(req, &out); err != nil {
				return "", err
			}
			return out.Name, nil
		},
		func() (string, error) {
			var out issueType
			if err := c.rc.GetJSON(ctx, "/rest/api/2/issuetype/"+typeID, nil, &out); err != nil {
				return "", err
			}
			return out.Name, nil
		},
	)
	return r.Value, r.OK()
}

func fromGoJira(iss *gojira.Issue) Issue {
	out := Issue{Key: iss.Key}
	if iss.Fields == nil {
		return out
	}
	out.Summary = iss.Fields.Summary
	out.TypeID = iss.Fields.Type.ID
	out.TypeName = iss.Fields.Type.Name
	if iss.Fields.Assignee != nil {
		out.Assignee = iss.Fields.Assignee.Name
	}
	if iss.Fields.Reporter != nil {
		out.Reporter = iss.Fields.Reporter.Name
	}
	return out
}

// projectKeyFromIssue derives the project key from an issue key such as
// "SFSEA-1524".
func projectKeyFromIssue(issueKey string) string {
	if i := strings.Index(issueKey, "-"); i > 0 {
		return issueKey[:i]
	}
	return issueKey
}
