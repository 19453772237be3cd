package controller

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/zulandar/switchboard/internal/command"
	"golang.org/x/oauth2"
)

// NounSearch is the noun handled by the search controller.
const NounSearch = "search"

// issueSearcher abstracts the GitHub search call we use, enabling test
// mocks. *github.SearchService satisfies it.
type issueSearcher interface {
	Issues(ctx context.Context, query string, opts *github.SearchOptions) (*github.IssuesSearchResult, *github.Response, error)
}

// SearchController answers search commands with GitHub issue results.
// A missing query triggers the completion protocol.
type SearchController struct {
	replier  Replier
	executor Executor
	searcher issueSearcher
	count    int
}

// SearchOpts holds parameters for creating a SearchController.
type SearchOpts struct {
	Replier  Replier
	Executor Executor
	Token    string // GitHub API token; anonymous when empty
	Count    int    // max results per reply
	// For testing: inject a mock searcher instead of the real GitHub API.
	Searcher issueSearcher
}

// NewSearch creates a SearchController.
func NewSearch(opts SearchOpts) (*SearchController, error) {
	if opts.Replier == nil {
		return nil, fmt.Errorf("controller: search: replier is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("controller: search: executor is required")
	}
	count := opts.Count
	if count <= 0 {
		count = 3
	}

	searcher := opts.Searcher
	if searcher == nil {
		var client *github.Client
		if opts.Token != "" {
			src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
			client = github.NewClient(oauth2.NewClient(context.Background(), src))
		} else {
			client = github.NewClient(nil)
		}
		searcher = client.Search
	}

	return &SearchController{
		replier:  opts.Replier,
		executor: opts.Executor,
		searcher: searcher,
		count:    count,
	}, nil
}

// Nouns returns the nouns this controller handles.
func (c *SearchController) Nouns() []string {
	return []string{NounSearch}
}

// Handle searches for the "query" field and replies with the top results.
func (c *SearchController) Handle(ctx context.Context, cmd command.Command) error {
	terms := cmd.Get("query")
	if len(terms) == 0 {
		return c.requestQuery(ctx, cmd)
	}
	query := strings.Join(terms, " ")

	result, _, err := c.searcher.Issues(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: c.count},
	})
	if err != nil {
		log.Printf("search: query %q: %v", query, err)
		c.sendReply(ctx, cmd.Context, "error running search")
		return nil
	}

	if len(result.Issues) == 0 {
		c.sendReply(ctx, cmd.Context, fmt.Sprintf("no results for: %s", query))
		return nil
	}

	c.sendReply(ctx, cmd.Context, formatIssues(query, result.Issues, c.count))
	return nil
}

// requestQuery opens a completion for the missing query.
func (c *SearchController) requestQuery(ctx context.Context, cmd command.Command) error {
	completion, err := command.NewCompletion(cmd, "query", "no query given")
	if err != nil {
		c.sendReply(ctx, cmd.Context, "no query given")
		return nil
	}
	c.executor.ExecuteCommand(ctx, completion)
	return nil
}

// formatIssues renders search results, one line per issue.
func formatIssues(query string, issues []*github.Issue, limit int) string {
	if len(issues) > limit {
		issues = issues[:limit]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "results for %s:\n", query)
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s (%s)\n", issue.GetTitle(), issue.GetHTMLURL())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *SearchController) sendReply(ctx context.Context, cmdCtx command.Context, text string) {
	if err := c.replier.Reply(ctx, cmdCtx, text); err != nil {
		log.Printf("search: reply: %v", err)
	}
}
