package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// GitHubAuthenticator implements Authenticator against GitHub's OAuth2
// apps flow, the way rocketship-ai-rocketship's internal/github client
// builds an oauth2.StaticTokenSource-backed client from an exchanged
// access token.
type GitHubAuthenticator struct {
	config *oauth2.Config
}

// NewGitHubAuthenticator builds a GitHubAuthenticator for the given OAuth2
// app credentials and callback URL.
func NewGitHubAuthenticator(clientID, clientSecret, redirectURL string, scopes []string) *GitHubAuthenticator {
	return &GitHubAuthenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     github.Endpoint,
		},
	}
}

// StartLogin returns GitHub's authorization URL for the given CSRF state.
func (a *GitHubAuthenticator) StartLogin(_ context.Context, state string) (string, error) {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// githubUser is the subset of GitHub's /user response this module needs.
type githubUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
	ID    int64  `json:"id"`
}

// HandleCallback exchanges the authorization code for a token, then fetches
// the authenticated user's profile.
func (a *GitHubAuthenticator) HandleCallback(ctx context.Context, query map[string]string) (UserInfo, error) {
	code := query["code"]
	if code == "" {
		return UserInfo{}, fmt.Errorf("upstream: missing code in GitHub callback")
	}

	oauthToken, err := a.config.Exchange(ctx, code)
	if err != nil {
		return UserInfo{}, fmt.Errorf("upstream: exchanging GitHub code: %w", err)
	}

	client := a.config.Client(ctx, oauthToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return UserInfo{}, fmt.Errorf("upstream: building GitHub user request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("upstream: fetching GitHub user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("upstream: GitHub user endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return UserInfo{}, fmt.Errorf("upstream: reading GitHub user response: %w", err)
	}

	var gu githubUser
	if err := json.Unmarshal(body, &gu); err != nil {
		return UserInfo{}, fmt.Errorf("upstream: decoding GitHub user response: %w", err)
	}

	return UserInfo{
		Username: gu.Login,
		UserMetadata: token.UserMetadata{
			Name:  gu.Name,
			Email: gu.Email,
			UID:   gu.ID,
		},
	}, nil
}
