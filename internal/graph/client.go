// Package graph is the Microsoft Graph mail client: OAuth2 endpoints,
// message and attachment operations, and per-folder delta queries.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mailmirror/internal/utils"

	"golang.org/x/net/proxy"
	"golang.org/x/oauth2"
)

// Scopes requested on every authorization
const Scopes = "User.Read Mail.Read Mail.ReadWrite Mail.Send offline_access"

// Tenant values with a fixed meaning on the Microsoft identity platform
var reservedAudiences = map[string]bool{
	"common":        true,
	"organizations": true,
	"consumers":     true,
}

// Config holds the Graph application registration and client knobs
type Config struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURI  string
	BaseURL      string
	Instance     string
	ProxyURL     string
	Timeout      time.Duration
	RateLimit    float64
}

// Client talks to the Microsoft identity platform and the Graph mail API
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *RateLimiter
	logger  *utils.Logger
}

// NewClient creates a Graph client. An invalid proxy URL is an error;
// an empty one means direct connections.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if cfg.Instance == "" {
		cfg.Instance = "https://login.microsoftonline.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy dialer: %w", err)
		}
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  utils.NewLogger("Graph"),
	}, nil
}

// authorityTenant resolves the tenant segment of the login authority.
// Empty falls back to the multi-tenant endpoint; reserved audience
// values and explicit tenant ids pass through.
func (c *Client) authorityTenant(tenantID string) string {
	if tenantID == "" {
		return "common"
	}
	if reservedAudiences[strings.ToLower(tenantID)] {
		return strings.ToLower(tenantID)
	}
	return tenantID
}

func (c *Client) oauthConfig(tenantID string) *oauth2.Config {
	tenant := c.authorityTenant(tenantID)
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURI,
		Scopes:       strings.Split(Scopes, " "),
		Endpoint: oauth2.Endpoint{
			AuthURL:   fmt.Sprintf("%s/%s/oauth2/v2.0/authorize", c.cfg.Instance, tenant),
			TokenURL:  fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.cfg.Instance, tenant),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizeURL builds the browser redirect URL for the consent flow
func (c *Client) AuthorizeURL(state, tenantID string) string {
	return c.oauthConfig(tenantID).AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_mode", "query"))
}

// ExchangeCode trades an authorization code for a token pair
func (c *Client) ExchangeCode(ctx context.Context, code, tenantID string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauthConfig(tenantID).Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			c.logger.Error("Token exchange failed: status=%d body=%s",
				retrieveErr.Response.StatusCode, utils.Redact(string(retrieveErr.Body)))
		} else {
			c.logger.Error("Token exchange failed: %v", err)
		}
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	refresh := tok.RefreshToken
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// Refresh trades a refresh token for a new token pair. When the
// provider omits a rotated refresh token the old one stays valid.
func (c *Client) Refresh(ctx context.Context, refreshToken, tenantID string) (*Token, error) {
	tenant := c.authorityTenant(tenantID)
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.cfg.Instance, tenant)

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("scope", Scopes)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Token refresh failed: status=%d body=%s",
			resp.StatusCode, utils.Redact(string(body)))
		return nil, fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("refresh response contained no access token")
	}

	newRefresh := tr.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return &Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// do executes one authenticated Graph request. rawURL overrides path
// when following provider-issued next/delta links.
func (c *Client) do(ctx context.Context, accessToken, method, path, rawURL string, query url.Values, payload, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := rawURL
	if endpoint == "" {
		endpoint = c.cfg.BaseURL + path
		if len(query) > 0 {
			endpoint += "?" + query.Encode()
		}
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		c.limiter.RecordRateLimitError(retryAfter)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		c.logger.Error("Graph %s %s failed: status=%d code=%s body=%s",
			method, path, resp.StatusCode, apiErr.Error.Code, utils.Redact(string(body)))
		if wrapped := WrapStatus(resp.StatusCode); wrapped != nil {
			return fmt.Errorf("%w (status %d)", wrapped, resp.StatusCode)
		}
		return fmt.Errorf("graph request returned status %d", resp.StatusCode)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// GetProfile resolves the signed-in account's identity
func (c *Client) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	query := url.Values{"$select": {"mail,userPrincipalName"}}
	var profile Profile
	if err := c.do(ctx, accessToken, http.MethodGet, "/me", "", query, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

const messageSelect = "id,subject,bodyPreview,body,from,toRecipients,ccRecipients,isRead,isDraft,hasAttachments,sentDateTime,receivedDateTime"

// ListMessages fetches one page of a folder, newest first
func (c *Client) ListMessages(ctx context.Context, accessToken, folderID string, top, skip int) ([]Message, error) {
	query := url.Values{
		"$top":     {strconv.Itoa(top)},
		"$skip":    {strconv.Itoa(skip)},
		"$orderby": {"receivedDateTime desc"},
		"$select":  {messageSelect},
	}
	var list MessageList
	path := fmt.Sprintf("/me/mailFolders/%s/messages", folderID)
	if err := c.do(ctx, accessToken, http.MethodGet, path, "", query, nil, &list); err != nil {
		return nil, err
	}
	return list.Value, nil
}

// GetMessage fetches a single full message
func (c *Client) GetMessage(ctx context.Context, accessToken, messageID string) (*Message, error) {
	var msg Message
	path := "/me/messages/" + url.PathEscape(messageID)
	if err := c.do(ctx, accessToken, http.MethodGet, path, "", nil, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendMail submits a message through the provider
func (c *Client) SendMail(ctx context.Context, accessToken string, req *SendMailRequest) error {
	return c.do(ctx, accessToken, http.MethodPost, "/me/sendMail", "", nil, req, nil)
}

// SetRead toggles the read flag on a remote message
func (c *Client) SetRead(ctx context.Context, accessToken, messageID string, isRead bool) error {
	path := "/me/messages/" + url.PathEscape(messageID)
	return c.do(ctx, accessToken, http.MethodPatch, path, "", nil, readPatch{IsRead: isRead}, nil)
}

// DeleteMessage deletes a remote message
func (c *Client) DeleteMessage(ctx context.Context, accessToken, messageID string) error {
	path := "/me/messages/" + url.PathEscape(messageID)
	return c.do(ctx, accessToken, http.MethodDelete, path, "", nil, nil, nil)
}

// MoveMessage moves a remote message to another well-known folder
func (c *Client) MoveMessage(ctx context.Context, accessToken, messageID, destinationFolderID string) error {
	path := "/me/messages/" + url.PathEscape(messageID) + "/move"
	return c.do(ctx, accessToken, http.MethodPost, path, "", nil,
		moveRequest{DestinationID: destinationFolderID}, nil)
}

// ListAttachments fetches attachment metadata for a message
func (c *Client) ListAttachments(ctx context.Context, accessToken, messageID string) ([]Attachment, error) {
	var list AttachmentList
	path := "/me/messages/" + url.PathEscape(messageID) + "/attachments"
	if err := c.do(ctx, accessToken, http.MethodGet, path, "", nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Value, nil
}

// GetAttachment fetches one attachment including its content bytes
func (c *Client) GetAttachment(ctx context.Context, accessToken, messageID, attachmentID string) (*Attachment, error) {
	var att Attachment
	path := "/me/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(attachmentID)
	if err := c.do(ctx, accessToken, http.MethodGet, path, "", nil, nil, &att); err != nil {
		return nil, err
	}
	return &att, nil
}

// Delta runs a delta query for one folder. An empty cursor starts a
// fresh baseline. Intermediate pages are followed until the provider
// hands back a delta link; the aggregated change set is returned with
// that cursor. A positive maxItems stops following next links once
// that many entries are aggregated; the unfollowed link is returned in
// NextLink and no delta cursor is produced.
func (c *Client) Delta(ctx context.Context, accessToken, folderID, cursor string, maxItems int) (*DeltaPage, error) {
	aggregate := &DeltaPage{}

	next := cursor
	path := fmt.Sprintf("/me/mailFolders/%s/messages/delta", folderID)

	for {
		var page DeltaPage
		var err error
		if next != "" {
			err = c.do(ctx, accessToken, http.MethodGet, "", next, nil, nil, &page)
		} else {
			err = c.do(ctx, accessToken, http.MethodGet, path, "", nil, nil, &page)
		}
		if err != nil {
			return nil, err
		}

		aggregate.Value = append(aggregate.Value, page.Value...)

		if page.DeltaLink != "" {
			aggregate.DeltaLink = page.DeltaLink
			return aggregate, nil
		}
		if page.NextLink == "" {
			return aggregate, nil
		}
		if maxItems > 0 && len(aggregate.Value) >= maxItems {
			aggregate.NextLink = page.NextLink
			return aggregate, nil
		}
		next = page.NextLink
	}
}
