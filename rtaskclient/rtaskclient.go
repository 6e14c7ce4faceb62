// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package rtaskclient is a typed HTTP client for the rtask API. A Client
// carries one session identity; derive per-participant clients from a base
// one with WithSession.
package rtaskclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtask/rtask/dispatch"
	"github.com/rtask/rtask/health"
	"github.com/rtask/rtask/rtask"
)

// Client talks to one rtask node over HTTP.
type Client struct {
	url     string
	c       *http.Client
	session string
}

// New creates a new Client with the provided URL.
func New(url string) *Client {
	return NewWithHTTP(url, http.DefaultClient)
}

func NewWithHTTP(url string, c *http.Client) *Client {
	return &Client{
		url: url,
		c:   c,
	}
}

// WithSession derives a client that authenticates as the given session.
func (c *Client) WithSession(session string) *Client {
	return &Client{
		url:     c.url,
		c:       c.c,
		session: session,
	}
}

// Profile is the account view served by /api/me.
type Profile struct {
	User                    *rtask.User                `json:"user"`
	WalletTransactions      []*rtask.WalletTransaction `json:"walletTransactions"`
	WalletTransactionsTotal int                        `json:"walletTransactionsTotal"`
}

// WalletUpdate is the result of a deposit or withdrawal.
type WalletUpdate struct {
	User        *rtask.User              `json:"user"`
	Transaction *rtask.WalletTransaction `json:"transaction"`
}

// CheckoutSession points the customer at a hosted payment page.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ResultsPage is a task's stored results plus its live leases.
type ResultsPage struct {
	Results     []*rtask.BucketResult     `json:"results"`
	Assignments []*rtask.BucketAssignment `json:"assignments"`
}

// BucketGrant is the next-chunk response. OK=false carries the deny reason
// in Message.
type BucketGrant struct {
	OK          bool              `json:"ok"`
	Message     string            `json:"message,omitempty"`
	BucketIndex int               `json:"bucketIndex"`
	ChunkData   []json.RawMessage `json:"chunkData"`
	RangeStart  int               `json:"rangeStart"`
	RangeEnd    int               `json:"rangeEnd"`
	BucketBytes int64             `json:"bucketBytes"`
	Resume      bool              `json:"resume"`
}

// ProgressAck acknowledges a progress batch with the merged counts.
type ProgressAck struct {
	OK        bool `json:"ok"`
	Processed int  `json:"processed"`
	Total     int  `json:"total"`
}

// BucketAck acknowledges a terminal bucket report. Payout is set when the
// report settled money.
type BucketAck struct {
	OK     bool                     `json:"ok"`
	Payout *rtask.WalletTransaction `json:"payout"`
}

// HeartbeatAck echoes the server clock of a heartbeat.
type HeartbeatAck struct {
	OK         bool      `json:"ok"`
	ServerTime time.Time `json:"serverTime"`
}

// OnlineStatus reports a worker's heartbeat recency.
type OnlineStatus struct {
	Online        bool       `json:"online"`
	LastHeartbeat *time.Time `json:"lastHeartbeat"`
	AgeMs         int64      `json:"ageMs"`
}

// CreateTaskParams are the multipart fields of a task creation request.
type CreateTaskParams struct {
	Name               string
	CapabilityRequired string
	MaxBuckets         int
	MaxBucketBytes     int64
	CostPerBucket      decimal.Decimal
	MaxBillableBuckets int
	PlatformFeePercent int

	CodeFilename string
	Code         io.Reader
	Data         []byte
}

// Me fetches the caller's profile, creating the account on first sight.
func (c *Client) Me() (*Profile, error) {
	body, err := c.httpGET(c.url + "/api/me")
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve profile - %w", err)
	}
	var p Profile
	if err = json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("unable to unmarshal profile - %w", err)
	}
	return &p, nil
}

// Deposit credits the caller's sandbox wallet.
func (c *Client) Deposit(amount decimal.Decimal) (*WalletUpdate, error) {
	return c.walletMove("/api/wallet/deposit", amount)
}

// Withdraw debits the caller's sandbox wallet.
func (c *Client) Withdraw(amount decimal.Decimal) (*WalletUpdate, error) {
	return c.walletMove("/api/wallet/withdraw", amount)
}

func (c *Client) walletMove(path string, amount decimal.Decimal) (*WalletUpdate, error) {
	body, err := c.httpPOST(c.url+path, map[string]decimal.Decimal{"amount": amount})
	if err != nil {
		return nil, fmt.Errorf("unable to move wallet funds - %w", err)
	}
	var upd WalletUpdate
	if err = json.Unmarshal(body, &upd); err != nil {
		return nil, fmt.Errorf("unable to unmarshal wallet update - %w", err)
	}
	return &upd, nil
}

// CreateCheckoutSession opens a hosted checkout for the given amount.
func (c *Client) CreateCheckoutSession(amount decimal.Decimal) (*CheckoutSession, error) {
	body, err := c.httpPOST(c.url+"/api/stripe/create-checkout-session", map[string]decimal.Decimal{"amount": amount})
	if err != nil {
		return nil, fmt.Errorf("unable to create checkout session - %w", err)
	}
	var cs CheckoutSession
	if err = json.Unmarshal(body, &cs); err != nil {
		return nil, fmt.Errorf("unable to unmarshal checkout session - %w", err)
	}
	return &cs, nil
}

// CreateTask uploads a new task with its code archive and data file.
func (c *Client) CreateTask(params *CreateTaskParams) (*rtask.Task, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"name":               params.Name,
		"capabilityRequired": params.CapabilityRequired,
	}
	if params.MaxBuckets > 0 {
		fields["maxBuckets"] = strconv.Itoa(params.MaxBuckets)
	}
	if params.MaxBucketBytes > 0 {
		fields["maxBucketBytes"] = strconv.FormatInt(params.MaxBucketBytes, 10)
	}
	if !params.CostPerBucket.IsZero() {
		fields["costPerBucket"] = params.CostPerBucket.String()
	}
	if params.MaxBillableBuckets > 0 {
		fields["maxBillableBuckets"] = strconv.Itoa(params.MaxBillableBuckets)
	}
	if params.PlatformFeePercent > 0 {
		fields["platformFeePercent"] = strconv.Itoa(params.PlatformFeePercent)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("unable to write form field - %w", err)
		}
	}

	if params.Code != nil {
		name := params.CodeFilename
		if name == "" {
			name = "code.zip"
		}
		fw, err := w.CreateFormFile("code", name)
		if err != nil {
			return nil, fmt.Errorf("unable to attach code archive - %w", err)
		}
		if _, err := io.Copy(fw, params.Code); err != nil {
			return nil, fmt.Errorf("unable to copy code archive - %w", err)
		}
	}
	if params.Data != nil {
		fw, err := w.CreateFormFile("data", "data.json")
		if err != nil {
			return nil, fmt.Errorf("unable to attach data file - %w", err)
		}
		if _, err := fw.Write(params.Data); err != nil {
			return nil, fmt.Errorf("unable to copy data file - %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("unable to finish multipart body - %w", err)
	}

	body, err := c.httpRequest("POST", c.url+"/api/tasks", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, fmt.Errorf("unable to create task - %w", err)
	}
	return unmarshalTask(body)
}

// Task fetches one task with derived progress.
func (c *Client) Task(id string) (*rtask.Task, error) {
	body, err := c.httpGET(c.url + "/api/tasks/" + id)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve task - %w", err)
	}
	return unmarshalTask(body)
}

// Tasks lists tasks newest first, optionally filtered by status.
func (c *Client) Tasks(status rtask.TaskStatus) ([]*rtask.Task, error) {
	url := c.url + "/api/tasks"
	if status != "" {
		url += "?status=" + string(status)
	}
	body, err := c.httpGET(url)
	if err != nil {
		return nil, fmt.Errorf("unable to list tasks - %w", err)
	}
	var out struct {
		Tasks []*rtask.Task `json:"tasks"`
	}
	if err = json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unable to unmarshal task list - %w", err)
	}
	return out.Tasks, nil
}

// DeleteTask removes a task and everything stored under it. Creator only.
func (c *Client) DeleteTask(id string) error {
	if _, err := c.httpDELETE(c.url + "/api/tasks/" + id); err != nil {
		return fmt.Errorf("unable to delete task - %w", err)
	}
	return nil
}

// ClaimTask opts the calling worker in.
func (c *Client) ClaimTask(id string) (*rtask.Task, error) {
	return c.taskAction(id, "claim")
}

// DropTask opts the calling worker out and releases its leases.
func (c *Client) DropTask(id string) (*rtask.Task, error) {
	return c.taskAction(id, "drop")
}

// RevokeTask pauses the task. Creator only.
func (c *Client) RevokeTask(id string) (*rtask.Task, error) {
	return c.taskAction(id, "revoke")
}

// ReinvokeTask lifts a revoke. Creator only.
func (c *Client) ReinvokeTask(id string) (*rtask.Task, error) {
	return c.taskAction(id, "reinvoke")
}

func (c *Client) taskAction(id, action string) (*rtask.Task, error) {
	body, err := c.httpPOST(c.url+"/api/tasks/"+id+"/"+action, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to %s task - %w", action, err)
	}
	return unmarshalTask(body)
}

// TaskResults fetches a task's bucket results and live leases.
func (c *Client) TaskResults(id string) (*ResultsPage, error) {
	body, err := c.httpGET(c.url + "/api/tasks/" + id + "/results")
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve results - %w", err)
	}
	var page ResultsPage
	if err = json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("unable to unmarshal results - %w", err)
	}
	return &page, nil
}

// NextBucket asks for the caller's next bucket of the task.
func (c *Client) NextBucket(taskID string) (*BucketGrant, error) {
	body, err := c.httpPOST(c.url+"/api/worker/next-chunk", map[string]string{"taskId": taskID})
	if err != nil {
		return nil, fmt.Errorf("unable to request bucket - %w", err)
	}
	var grant BucketGrant
	if err = json.Unmarshal(body, &grant); err != nil {
		return nil, fmt.Errorf("unable to unmarshal bucket grant - %w", err)
	}
	return &grant, nil
}

// RecordProgress streams a mid-bucket progress batch.
func (c *Client) RecordProgress(batch *dispatch.ProgressBatch) (*ProgressAck, error) {
	body, err := c.httpPOST(c.url+"/api/worker/record-progress", batch)
	if err != nil {
		return nil, fmt.Errorf("unable to record progress - %w", err)
	}
	var ack ProgressAck
	if err = json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("unable to unmarshal progress ack - %w", err)
	}
	return &ack, nil
}

// RecordBucket submits a terminal bucket report.
func (c *Client) RecordBucket(report *dispatch.BucketReport) (*BucketAck, error) {
	body, err := c.httpPOST(c.url+"/api/worker/record-chunk", report)
	if err != nil {
		return nil, fmt.Errorf("unable to record bucket - %w", err)
	}
	var ack BucketAck
	if err = json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("unable to unmarshal bucket ack - %w", err)
	}
	return &ack, nil
}

// Heartbeat marks the calling worker online and returns the server clock.
func (c *Client) Heartbeat() (*HeartbeatAck, error) {
	body, err := c.httpPOST(c.url+"/api/worker/heartbeat", nil)
	if err != nil {
		return nil, fmt.Errorf("unable to heartbeat - %w", err)
	}
	var ack HeartbeatAck
	if err = json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("unable to unmarshal heartbeat ack - %w", err)
	}
	return &ack, nil
}

// Online reports another worker's heartbeat recency.
func (c *Client) Online(workerID string) (*OnlineStatus, error) {
	body, err := c.httpGET(c.url + "/api/worker/online/" + workerID)
	if err != nil {
		return nil, fmt.Errorf("unable to check worker - %w", err)
	}
	var status OnlineStatus
	if err = json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("unable to unmarshal online status - %w", err)
	}
	return &status, nil
}

// Health fetches the node's health probe.
func (c *Client) Health() (*health.Status, error) {
	body, err := c.httpGET(c.url + "/api/health")
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve health - %w", err)
	}
	var status health.Status
	if err = json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("unable to unmarshal health - %w", err)
	}
	return &status, nil
}

func unmarshalTask(body []byte) (*rtask.Task, error) {
	var out struct {
		Task *rtask.Task `json:"task"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unable to unmarshal task - %w", err)
	}
	return out.Task, nil
}
