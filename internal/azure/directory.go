// Package azure implements the domain ports against Microsoft Graph and the
// ARM authorization service.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"golang.org/x/time/rate"

	"rolesweep/internal/domain"
)

const membersPageSize = 999

// Directory is a Microsoft Graph client implementing
// domain.PrincipalDirectory. It returns one level of membership per call;
// recursive expansion belongs to the scanner.
type Directory struct {
	endpoint   string
	cred       azcore.TokenCredential
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu    sync.Mutex
	token azcore.AccessToken
}

// DirectoryOptions tunes the Graph client.
type DirectoryOptions struct {
	// Endpoint is the Graph base URL including API version,
	// e.g. https://graph.microsoft.com/v1.0.
	Endpoint string
	// RPS and Burst throttle outbound requests. Zero values disable the
	// limiter.
	RPS   float64
	Burst int
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// NewDirectory creates a Graph-backed directory authenticating with cred.
func NewDirectory(cred azcore.TokenCredential, logger *slog.Logger, opts DirectoryOptions) *Directory {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://graph.microsoft.com/v1.0"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Directory{
		endpoint:   endpoint,
		cred:       cred,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

// directoryObject is the subset of a Graph directoryObject the scanner needs.
type directoryObject struct {
	ODataType         string `json:"@odata.type"`
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
}

type memberPage struct {
	Value    []directoryObject `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// GetPrincipal resolves a directory object id to its snapshot.
func (d *Directory) GetPrincipal(ctx context.Context, id string) (*domain.Principal, error) {
	u := fmt.Sprintf("%s/directoryObjects/%s?$select=id,displayName,userPrincipalName", d.endpoint, url.PathEscape(id))

	var obj directoryObject
	if err := d.get(ctx, u, &obj); err != nil {
		return nil, err
	}
	if obj.ID == "" {
		obj.ID = id
	}
	return &domain.Principal{
		ID:                obj.ID,
		Type:              principalTypeOf(obj),
		DisplayName:       obj.DisplayName,
		UserPrincipalName: obj.UserPrincipalName,
	}, nil
}

// ListGroupMembers returns the direct member ids of a group, following
// @odata.nextLink paging.
func (d *Directory) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	next := fmt.Sprintf("%s/groups/%s/members?$select=id&$top=%d", d.endpoint, url.PathEscape(groupID), membersPageSize)

	var members []string
	for next != "" {
		var page memberPage
		if err := d.get(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, m := range page.Value {
			if m.ID != "" {
				members = append(members, m.ID)
			}
		}
		next = page.NextLink
	}
	return members, nil
}

// get performs one authenticated Graph request and decodes the response into
// out, translating HTTP failures into the domain error taxonomy.
func (d *Directory) get(ctx context.Context, rawURL string, out interface{}) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	token, err := d.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("acquire graph token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		// Network-level failures are retryable.
		return domain.ErrThrottled("graph request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return graphStatusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// accessToken returns a cached Graph token, refreshing shortly before expiry.
func (d *Directory) accessToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.token.Token != "" && time.Until(d.token.ExpiresOn) > 2*time.Minute {
		return d.token.Token, nil
	}

	scope, err := graphScope(d.endpoint)
	if err != nil {
		return "", err
	}
	token, err := d.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return "", err
	}
	d.token = token
	return token.Token, nil
}

// graphScope derives the token scope from the endpoint host, so sovereign
// cloud endpoints request tokens for the matching audience.
func graphScope(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid graph endpoint %q", endpoint)
	}
	return u.Scheme + "://" + u.Host + "/.default", nil
}

// graphStatusError maps a non-200 Graph response to the domain taxonomy.
func graphStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := graphErrorMessage(body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound("graph: %s", detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrForbidden("graph: %s", detail)
	case http.StatusTooManyRequests:
		return &domain.ThrottledError{
			Message:    fmt.Sprintf("graph: %s", detail),
			RetryAfter: retryAfterOf(resp),
		}
	}
	if resp.StatusCode >= 500 {
		return domain.ErrThrottled("graph: %s", detail)
	}
	return fmt.Errorf("graph: unexpected status %d: %s", resp.StatusCode, detail)
}

func graphErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		if parsed.Error.Code != "" {
			return parsed.Error.Code + ": " + parsed.Error.Message
		}
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func retryAfterOf(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// principalTypeOf classifies a Graph directoryObject by its @odata.type.
func principalTypeOf(obj directoryObject) domain.PrincipalType {
	switch {
	case strings.EqualFold(obj.ODataType, "#microsoft.graph.user"):
		return domain.PrincipalTypeUser
	case strings.EqualFold(obj.ODataType, "#microsoft.graph.group"):
		return domain.PrincipalTypeGroup
	case strings.EqualFold(obj.ODataType, "#microsoft.graph.servicePrincipal"):
		return domain.PrincipalTypeServicePrincipal
	case obj.UserPrincipalName != "":
		// Some objects omit @odata.type in $select responses; a UPN means
		// a user.
		return domain.PrincipalTypeUser
	default:
		return domain.PrincipalTypeUnknown
	}
}
