// Package directory talks to the external IEDC membership directory. The
// directory owns registration and OTP verification; this client only reads
// member profiles back by membership id.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrMemberNotFound covers every failure mode of the upstream lookup:
// missing member, upstream error and malformed payload all look the same to
// callers so no upstream detail leaks out.
var ErrMemberNotFound = errors.New("member not found")

// Member is a directory profile. Fields the upstream omits stay empty.
type Member struct {
	MembershipID string `json:"membershipId"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Department   string `json:"department"`
	Year         string `json:"year"`
}

// Name joins first and last name.
func (m Member) Name() string {
	if m.FirstName == "" {
		return m.LastName
	}
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// Client calls the membership directory service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, lookups return a mock member so the
// rest of the system can run without the upstream.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup fetches a member profile by membership id.
func (c *Client) Lookup(ctx context.Context, membershipID string) (*Member, error) {
	if c.Skip {
		return &Member{
			MembershipID: membershipID,
			FirstName:    "Mock",
			LastName:     "Member",
			Department:   "IT",
		}, nil
	}
	if membershipID == "" {
		return nil, ErrMemberNotFound
	}

	endpoint := fmt.Sprintf("%s/api/users/member?id=%s", c.BaseURL, url.QueryEscape(membershipID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, ErrMemberNotFound
	}

	var out struct {
		Success bool    `json:"success"`
		Data    *Member `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ErrMemberNotFound
	}
	if !out.Success || out.Data == nil {
		return nil, ErrMemberNotFound
	}
	if out.Data.MembershipID == "" {
		out.Data.MembershipID = membershipID
	}
	return out.Data, nil
}

// Health checks whether the directory answers at all.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("directory unavailable: %w", err)
	}
	resp.Body.Close()
	return nil
}
