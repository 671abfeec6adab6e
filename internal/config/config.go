package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings. It is built once at startup and passed
// by value into every component; nothing mutates it afterwards.
type Config struct {
	// Server
	Port   string
	APIKey string

	// Atlassian endpoints and tokens.
	JiraURL             string
	JiraToken           string
	ConfluenceURL       string
	ConfluenceToken     string
	JiraMacroServerName string
	JiraMacroServerID   string

	// Jira master data. ParentIssueTypes maps issue-type names to IDs; a
	// page-level issue macro must resolve to one of these types to act as
	// the parent for new tasks.
	ParentIssueTypes  map[string]string
	TaskIssueTypeID   string
	ParentLinkFieldID string

	// Target statuses for issue transitions.
	NewTaskStatus  string
	DoneStatus     string
	UndoStatus     string
	ProductionMode bool

	// Macro names whose content is transcluded from elsewhere. Tasks and
	// issue macros inside them are excluded from extraction.
	AggregationMacros []string

	// Behavior knobs.
	DefaultDueDateDays int
	FuzzyThreshold     float64
	DiscoveryWorkers   int
	RequestTimeout     time.Duration

	// Run-result store.
	RedisAddr string
	UndoTTL   time.Duration
}

// Default aggregation macro names for a Confluence Server instance with the
// common reporting/transclusion plugins installed.
var defaultAggregationMacros = []string{
	"jira", "jiraissues", "excerpt", "excerpt-include", "include",
	"widget", "html", "content-report-table", "pagetree",
	"recently-updated", "table-excerpt", "table-excerpt-include",
	"table-filter", "table-pivot", "table-transformer",
}

// Load reads configuration from the environment, consulting a .env file if
// one is present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		APIKey:              os.Getenv("API_SECRET_KEY"),
		JiraURL:             strings.TrimRight(os.Getenv("JIRA_URL"), "/"),
		JiraToken:           os.Getenv("JIRA_API_TOKEN"),
		ConfluenceURL:       strings.TrimRight(os.Getenv("CONFLUENCE_URL"), "/"),
		ConfluenceToken:     os.Getenv("CONFLUENCE_API_TOKEN"),
		JiraMacroServerName: os.Getenv("JIRA_MACRO_SERVER_NAME"),
		JiraMacroServerID:   os.Getenv("JIRA_MACRO_SERVER_ID"),
		TaskIssueTypeID:     getEnv("TASK_ISSUE_TYPE_ID", "10002"),
		ParentLinkFieldID:   getEnv("JIRA_PARENT_WP_CUSTOM_FIELD_ID", "customfield_10207"),
		NewTaskStatus:       getEnv("JIRA_STATUS_NEW_TASK", "Backlog"),
		DoneStatus:          getEnv("JIRA_STATUS_DONE", "Done"),
		UndoStatus:          getEnv("JIRA_STATUS_UNDO", "Backlog"),
		ProductionMode:      getEnvBool("PRODUCTION_MODE", false),
		AggregationMacros:   getEnvList("AGGREGATION_MACROS", defaultAggregationMacros),
		DefaultDueDateDays:  getEnvInt("DEFAULT_DUE_DATE_DAYS", 14),
		FuzzyThreshold:      getEnvFloat("FUZZY_MATCH_THRESHOLD", 0.8),
		DiscoveryWorkers:    getEnvInt("DISCOVERY_WORKERS", 10),
		RequestTimeout:      getEnvDuration("API_REQUEST_TIMEOUT", 15*time.Second),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		UndoTTL:             getEnvDuration("UNDO_EXPIRATION", 24*time.Hour),
	}

	cfg.ParentIssueTypes = getEnvMap("PARENT_ISSUE_TYPE_IDS", map[string]string{
		"Work Package": "10100",
		"Risk":         "11404",
		"Deviation":    "10103",
	})

	if cfg.JiraURL == "" || cfg.ConfluenceURL == "" {
		return cfg, fmt.Errorf("JIRA_URL and CONFLUENCE_URL must be set")
	}
	return cfg, nil
}

// DefaultDueDate returns the due date applied when a task marker carries
// none, as an ISO date relative to now.
func (c Config) DefaultDueDate(now time.Time, daysOverride int) string {
	days := c.DefaultDueDateDays
	if daysOverride > 0 {
		days = daysOverride
	}
	return now.AddDate(0, 0, days).Format("2006-01-02")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getEnvList parses a comma-separated list.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvMap parses "Name=ID,Name=ID" pairs.
func getEnvMap(key string, def map[string]string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		name, id, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(id)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
