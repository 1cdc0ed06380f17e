// Package remote is the HTTP adapter for the data-collection Web API. It
// owns authentication state for the wire session and classifies every
// failure into the typed errors in internal/models.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xavim/fieldentry/internal/models"
	pkglogger "github.com/xavim/fieldentry/pkg/logger"
)

// Client talks to one server at a time. It is created unconfigured;
// Login establishes the base URL and bearer token. Calls made before a
// successful Login return models.ErrNotInitialized.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	baseURL  string
	token    string
	username string
	loggedIn bool
}

// NewClient creates an unconfigured client.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type loginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login authenticates against serverURL. Logging in again with the same
// server and username while the wire session is live reports
// models.ErrAlreadyAuthenticated, mirroring the remote SDK contract.
func (c *Client) Login(ctx context.Context, serverURL, username, password string) error {
	base, err := normalizeServerURL(serverURL)
	if err != nil {
		return models.ErrNetwork
	}

	if c.loggedIn && c.baseURL == base && c.username == username {
		return models.ErrAlreadyAuthenticated
	}

	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return models.ErrServer
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return models.ErrServer
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Info("login transport failure",
			slog.String("server_url", pkglogger.SanitizedServerURL(base)),
			slog.Any("error", err))
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, decodeAPIError(resp.Body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil || lr.Token == "" {
		return models.ErrServer
	}

	c.baseURL = base
	c.token = lr.Token
	c.username = username
	c.loggedIn = true

	c.logger.Info("remote session established",
		slog.String("server_url", pkglogger.SanitizedServerURL(base)),
		slog.String("username", pkglogger.SanitizedUsername(username)))
	return nil
}

// Logout tears down the wire session. The local session is dropped even
// when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	if !c.loggedIn {
		return nil
	}

	err := c.do(ctx, http.MethodDelete, "/api/auth/login", nil, nil)

	c.token = ""
	c.username = ""
	c.loggedIn = false

	return err
}

// IsLoggedIn reports whether a wire session is live.
func (c *Client) IsLoggedIn() bool {
	return c.loggedIn
}

// Datasets returns the data collection form templates visible to the user.
func (c *Client) Datasets(ctx context.Context) ([]models.Dataset, error) {
	var out struct {
		Datasets []models.Dataset `json:"dataSets"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/dataSets", nil, &out); err != nil {
		return nil, err
	}
	return out.Datasets, nil
}

// Form returns the entry form sections for a dataset.
func (c *Client) Form(ctx context.Context, datasetUID string) ([]models.FormSection, error) {
	var out struct {
		Sections []models.FormSection `json:"sections"`
	}
	path := "/api/dataSets/" + url.PathEscape(datasetUID) + "/form"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Sections, nil
}

// OrgUnits returns the organisation units the user may report against
// for a dataset.
func (c *Client) OrgUnits(ctx context.Context, datasetUID string) ([]models.OrganisationUnit, error) {
	var out struct {
		OrgUnits []models.OrganisationUnit `json:"organisationUnits"`
	}
	path := "/api/dataSets/" + url.PathEscape(datasetUID) + "/organisationUnits"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.OrgUnits, nil
}

// DatasetInstances lists registrations matching the filter.
func (c *Client) DatasetInstances(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error) {
	q := url.Values{}
	if filter.DatasetUID != "" {
		q.Set("dataSet", filter.DatasetUID)
	}
	if filter.OrgUnitUID != "" {
		q.Set("orgUnit", filter.OrgUnitUID)
	}
	if filter.PeriodID != "" {
		q.Set("period", filter.PeriodID)
	}
	if filter.State != "" {
		q.Set("state", string(filter.State))
	}

	var out struct {
		Instances []models.DatasetInstance `json:"completeDataSetRegistrations"`
	}
	path := "/api/completeDataSetRegistrations"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Instances, nil
}

// DataValues fetches the stored values of one dataset instance.
func (c *Client) DataValues(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error) {
	q := instanceQuery(key)
	var out struct {
		DataValues []models.DataValue `json:"dataValues"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/dataValueSets?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.DataValues, nil
}

type dataValueSet struct {
	models.InstanceKey
	DataValues []models.DataValue `json:"dataValues"`
}

// PushDataValues uploads values for one dataset instance.
func (c *Client) PushDataValues(ctx context.Context, key models.InstanceKey, values []models.DataValue) error {
	return c.do(ctx, http.MethodPost, "/api/dataValueSets", dataValueSet{InstanceKey: key, DataValues: values}, nil)
}

type completeRegistration struct {
	models.InstanceKey
	CompletedBy string `json:"completedBy,omitempty"`
}

// CompleteRegistration marks a dataset instance completed.
func (c *Client) CompleteRegistration(ctx context.Context, key models.InstanceKey, completedBy string) error {
	return c.do(ctx, http.MethodPost, "/api/completeDataSetRegistrations",
		completeRegistration{InstanceKey: key, CompletedBy: completedBy}, nil)
}

// ReopenRegistration removes the completion mark from a dataset instance.
func (c *Client) ReopenRegistration(ctx context.Context, key models.InstanceKey) error {
	q := instanceQuery(key)
	return c.do(ctx, http.MethodDelete, "/api/completeDataSetRegistrations?"+q.Encode(), nil, nil)
}

// do issues an authenticated request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.loggedIn || c.baseURL == "" {
		return models.ErrNotInitialized
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return models.ErrServer
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return models.ErrServer
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// The server dropped our session; reflect it locally.
		c.loggedIn = false
		c.token = ""
	}
	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, decodeAPIError(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return models.ErrServer
		}
	}
	return nil
}

func decodeAPIError(r io.Reader) apiError {
	var body apiError
	_ = json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body)
	return body
}

func instanceQuery(key models.InstanceKey) url.Values {
	q := url.Values{}
	q.Set("dataSet", key.DatasetUID)
	q.Set("period", key.PeriodID)
	q.Set("orgUnit", key.OrgUnitUID)
	q.Set("attributeOptionCombo", key.AttributeCombo)
	return q
}

func normalizeServerURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("not an absolute http(s) url: %s", raw)
	}
	return u.String(), nil
}
