// Package confluence wraps all Confluence operations behind the two-tier
// remote call policy: the virtomize/confluence-go-api client is tried first,
// with a direct REST call reconstructing the same semantics on any failure.
package confluence

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	goconfluence "github.com/virtomize/confluence-go-api"
	"go.uber.org/zap"

	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/config"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/restclient"
	"github.com/tdnguyen0403/confluence-jira-task-sync/internal/safecall"
)

// Page is the subset of a Confluence page the orchestrators work with. Both
// tiers populate it identically except for version author metadata, which
// the primary client does not expose.
type Page struct {
	ID          string
	Title       string
	Body        string
	Version     int
	VersionBy   string
	VersionWhen string
	WebURL      string
}

// restPage mirrors the REST content response for the fallback tier.
type restPage struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version struct {
		Number int    `json:"number"`
		When   string `json:"when"`
		By     struct {
			DisplayName string `json:"displayName"`
		} `json:"by"`
	} `json:"version"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

// Client is the resilient Confluence service.
type Client struct {
	api    *goconfluence.API
	rc     *restclient.Client
	cfg    config.Config
	logger *zap.Logger
}

// NewClient creates the Confluence service.
func NewClient(cfg config.Config, rc *restclient.Client, logger *zap.Logger) (*Client, error) {
	api, err := goconfluence.NewAPI(cfg.ConfluenceURL+"/rest/api", "", cfg.ConfluenceToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create confluence client: %w", err)
	}
	return &Client{api: api, rc: rc, cfg: cfg, logger: logger}, nil
}

// GetPage fetches a page with body and version expanded. A version of 0
// fetches the latest revision; any other value fetches that historical
// revision. Absence means both tiers failed.
func (c *Client) GetPage(ctx context.Context, pageID string, version int) (*Page, bool) {
	r := safecall.Get(c.logger, "confluence.get_page", pageID,
		func() (*Page, error) {
			query := goconfluence.ContentQuery{
				Expand: []string{"body.storage", "version"},
			}
			if version > 0 {
				query.Version = version
			}
			content, err := c.api.GetContentByID(pageID, query)
			if err != nil {
				return nil, err
			}
			p := &Page{
				ID:     content.ID,
				Title:  content.Title,
				Body:   content.Body.Storage.Value,
				WebURL: c.webURL(content.ID),
			}
			if content.Version != nil {
				p.Version = content.Version.Number
			}
			return p, nil
		},
		func() (*Page, error) {
			params := url.Values{}
			params.Set("expand", "body.storage,version")
			if version > 0 {
				params.Set("version", strconv.Itoa(version))
			}
			var out restPage
			if err := c.rc.GetJSON(ctx, "/rest/api/content/"+pageID, params, &out); err != nil {
				return nil, err
			}
			p := &Page{
				ID:          out.ID,
				Title:       out.Title,
				Body:        out.Body.Storage.Value,
				Version:     out.Version.Number,
				VersionBy:   out.Version.By.DisplayName,
				VersionWhen: out.Version.When,
				WebURL:      c.webURL(out.ID),
			}
			if out.Links.WebUI != "" {
				p.WebURL = c.cfg.ConfluenceURL + out.Links.WebUI
			}
			return p, nil
		},
	)
	return r.Value, r.OK()
}

// UpdatePage writes a new body for the page using read-modify-write: the
// current version number is fetched, incremented, and submitted with the new
// body. Fails cleanly when the current version cannot be fetched.
func (c *Client) UpdatePage(ctx context.Context, pageID, title, body string) bool {
	current, ok := c.GetPage(ctx, pageID, 0)
	if !ok {
		c.logger.Error("could not fetch current page version for update",
			zap.String("page_id", pageID))
		return false
	}
	next := current.Version + 1

	return safecall.Do(c.logger, "confluence.update_page", pageID,
		func() error {
			_, err := c.api.UpdateContent(&goconfluence.Content{
				ID:    pageID,
				Type:  "page",
				Title: title,
				Body: goconfluence.Body{
					Storage: goconfluence.Storage{
						Value:          body,
						Representation: "storage",
					},
				},
				Version: &goconfluence.Version{Number: next},
			})
			return err
		},
		func() error {
			payload := map[string]any{
				"version": map[string]any{"number": next},
				"type":    "page",
				"title":   title,
				"body": map[string]any{
					"storage": map[string]any{
						"value":          body,
						"representation": "storage",
					},
				},
			}
			return c.rc.PutJSON(ctx, "/rest/api/content/"+pageID, payload, nil)
		},
	)
}

// ChildPageIDs enumerates the ids of a page's direct child pages.
func (c *Client) ChildPageIDs(ctx context.Context, pageID string) []string {
	r := safecall.Get(c.logger, "confluence.child_pages", pageID,
		func() ([]string, error) {
			res, err := c.api.GetChildPages(pageID)
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(res.Results))
			for _, child := range res.Results {
				ids = append(ids, child.ID)
			}
			return ids, nil
		},
		func() ([]string, error) {
			var ids []string
			start := 0
			const limit = 50
			for {
				params := url.Values{}
				params.Set("start", strconv.Itoa(start))
				params.Set("limit", strconv.Itoa(limit))
				var out struct {
					Results []struct {
						ID string `json:"id"`
					} `json:"results"`
				}
				path := "/rest/api/content/" + pageID + "/child/page"
				if err := c.rc.GetJSON(ctx, path, params, &out); err != nil {
					return nil, err
				}
				for _, r := range out.Results {
					ids = append(ids, r.ID)
				}
				if len(out.Results) < limit {
					return ids, nil
				}
				start += len(out.Results)
			}
		},
	)
	return r.Value
}

// UsernameByKey resolves a Confluence user key to a username. The primary
// client has no user-by-key call, so this operation is served by the direct
// REST tier alone.
func (c *Client) UsernameByKey(ctx context.Context, userKey string) (string, bool) {
	var out struct {
		Username string `json:"username"`
	}
	params := url.Values{}
	params.Set("key", userKey)
	if err := c.rc.GetJSON(ctx, "/rest/api/user", params, &out); err != nil {
		c.logger.Error("failed to resolve confluence user",
			zap.String("user_key", userKey),
			zap.Error(err),
		)
		return "", false
	}
	return out.Username, out.Username != ""
}

var (
	pageIDQueryRe = regexp.MustCompile(`pageId=(\d+)`)
	pageIDPathRe  = regexp.MustCompile(`/pages/(\d+)`)
)

// PageIDFromURL extracts the page id from a long-form URL, resolving short
// links by following redirects manually.
func (c *Client) PageIDFromURL(ctx context.Context, pageURL string) (string, bool) {
	if id := matchPageID(pageURL); id != "" {
		return id, true
	}

	// Short link: follow redirects by hand so intermediate hops can also be
	// matched against the long-form patterns.
	current := pageURL
	for hop := 0; hop < 5; hop++ {
		status, location, err := c.rc.Head(ctx, current)
		if err != nil {
			c.logger.Error("could not resolve short page URL",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			return "", false
		}
		if status >= 300 && status < 400 && location != "" {
			if id := matchPageID(location); id != "" {
				return id, true
			}
			current = location
			continue
		}
		break
	}
	c.logger.Error("could not extract page id from URL", zap.String("url", pageURL))
	return "", false
}

func matchPageID(u string) string {
	if m := pageIDQueryRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	if m := pageIDPathRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

func (c *Client) webURL(pageID string) string {
	return c.cfg.ConfluenceURL + "/pages/viewpage.action?pageId=" + pageID
}
