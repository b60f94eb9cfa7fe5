package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RESTClient is a thin HTTP implementation of the API capability against a
// GitHub-compatible endpoint. It stays deliberately minimal: target and
// payload validation happened upstream, and request shaping beyond these
// verbs is out of the mediation core's scope.
type RESTClient struct {
	baseURL    string
	graphqlURL string
	token      string
	http       *http.Client
}

// NewRESTClient builds a client for the given API base URL, e.g.
// "https://api.github.com".
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		graphqlURL: baseURL + "/graphql",
		token:      token,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type createdResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

func (c *RESTClient) CreateIssue(ctx context.Context, repo string, issue NewIssue) (Created, error) {
	var res createdResponse
	payload := map[string]any{"title": issue.Title, "body": issue.Body}
	if len(issue.Labels) > 0 {
		payload["labels"] = issue.Labels
	}
	if err := c.do(ctx, http.MethodPost, "/repos/"+repo+"/issues", payload, &res); err != nil {
		return Created{}, err
	}
	return Created{Repo: repo, Number: res.Number, URL: res.HTMLURL}, nil
}

func (c *RESTClient) CreatePullRequest(ctx context.Context, repo string, pr NewPullRequest) (Created, error) {
	var res createdResponse
	payload := map[string]any{"title": pr.Title, "body": pr.Body, "head": pr.Branch, "base": pr.Base}
	if err := c.do(ctx, http.MethodPost, "/repos/"+repo+"/pulls", payload, &res); err != nil {
		return Created{}, err
	}
	if len(pr.Labels) > 0 {
		// labels apply through the issues side of the API
		ref := Ref{Repo: repo, Number: res.Number}
		if err := c.AddLabels(ctx, ref, pr.Labels); err != nil {
			return Created{}, err
		}
	}
	return Created{Repo: repo, Number: res.Number, URL: res.HTMLURL}, nil
}

func issueChangesPayload(changes IssueChanges) map[string]any {
	payload := map[string]any{}
	if changes.Title != nil {
		payload["title"] = *changes.Title
	}
	if changes.Body != nil {
		payload["body"] = *changes.Body
	}
	if changes.State != nil {
		payload["state"] = *changes.State
	}
	return payload
}

func (c *RESTClient) UpdateIssue(ctx context.Context, ref Ref, changes IssueChanges) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/issues/%d", ref.Repo, ref.Number), issueChangesPayload(changes), nil)
}

func (c *RESTClient) UpdatePullRequest(ctx context.Context, ref Ref, changes IssueChanges) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/pulls/%d", ref.Repo, ref.Number), issueChangesPayload(changes), nil)
}

func (c *RESTClient) CloseIssue(ctx context.Context, ref Ref) error {
	state := "closed"
	return c.UpdateIssue(ctx, ref, IssueChanges{State: &state})
}

func (c *RESTClient) CloseDiscussion(ctx context.Context, ref Ref, reason string) error {
	// Discussions have no REST mutation surface; resolve the node ID and
	// close through GraphQL.
	owner, name, ok := strings.Cut(ref.Repo, "/")
	if !ok {
		return fmt.Errorf("repo %q is not owner/name", ref.Repo)
	}
	data, err := c.GraphQuery(ctx, `
		query($owner: String!, $name: String!, $number: Int!) {
			repository(owner: $owner, name: $name) {
				discussion(number: $number) { id }
			}
		}`, map[string]any{"owner": owner, "name": name, "number": ref.Number})
	if err != nil {
		return err
	}
	var lookup struct {
		Repository struct {
			Discussion struct {
				ID string `json:"id"`
			} `json:"discussion"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(data, &lookup); err != nil {
		return err
	}
	if lookup.Repository.Discussion.ID == "" {
		return fmt.Errorf("discussion %s#%d not found", ref.Repo, ref.Number)
	}
	vars := map[string]any{"id": lookup.Repository.Discussion.ID}
	query := `
		mutation($id: ID!) {
			closeDiscussion(input: {discussionId: $id}) { discussion { id } }
		}`
	if reason != "" {
		vars["reason"] = strings.ToUpper(reason)
		query = `
		mutation($id: ID!, $reason: DiscussionCloseReason!) {
			closeDiscussion(input: {discussionId: $id, reason: $reason}) { discussion { id } }
		}`
	}
	_, err = c.GraphQuery(ctx, query, vars)
	return err
}

func (c *RESTClient) Comment(ctx context.Context, ref Ref, body string) (string, error) {
	var res createdResponse
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", ref.Repo, ref.Number)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"body": body}, &res); err != nil {
		return "", err
	}
	return res.HTMLURL, nil
}

func (c *RESTClient) AddLabels(ctx context.Context, ref Ref, labels []string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/labels", ref.Repo, ref.Number)
	return c.do(ctx, http.MethodPost, path, map[string]any{"labels": labels}, nil)
}

func (c *RESTClient) RequestReviewers(ctx context.Context, ref Ref, reviewers []string) error {
	path := fmt.Sprintf("/repos/%s/pulls/%d/requested_reviewers", ref.Repo, ref.Number)
	return c.do(ctx, http.MethodPost, path, map[string]any{"reviewers": reviewers}, nil)
}

func (c *RESTClient) GraphQuery(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error) {
	req, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("graphql: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	var wrapped struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return nil, err
	}
	if len(wrapped.Errors) > 0 {
		return nil, fmt.Errorf("graphql: %s", wrapped.Errors[0].Message)
	}
	return wrapped.Data, nil
}

var _ API = (*RESTClient)(nil)
