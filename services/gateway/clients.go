package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/openlend/lending-platform/internal/faults"
)

// BorrowingsAPI is the gateway's contract with the borrowing state machine.
type BorrowingsAPI interface {
	Create(ctx context.Context, input CreateBorrowingInput) (*BorrowRequest, error)
	Get(ctx context.Context, requestID string) (*BorrowRequest, error)
	UpdateStatus(ctx context.Context, requestID, expected, newStatus string, adminNotes *string) (*BorrowRequest, error)
	ListByUser(ctx context.Context, userID string) ([]*BorrowRequest, error)
	ListAll(ctx context.Context, statusFilter string) ([]*BorrowRequest, error)
	History(ctx context.Context, query HistoryQuery) ([]*BorrowRequest, error)
}

// ItemsAPI is the gateway's contract with the availability ledger.
type ItemsAPI interface {
	GetItem(ctx context.Context, itemID string) (*Item, error)
	ListItems(ctx context.Context, categoryFilter string) ([]*Item, error)
	Reserve(ctx context.Context, itemID string, quantity int, borrowRequestID string) (*Item, error)
	Release(ctx context.Context, itemID string, quantity int, borrowRequestID string) (*Item, error)
}

// Notifier delivers best-effort events. Implementations never block the
// saga and never fail it.
type Notifier interface {
	Send(userID, eventType, message string)
}

// fromResponse translates a finished resty call into the fault taxonomy.
// Transport errors become Timeout/Internal; error payloads keep the code
// the remote service chose, so nothing is flattened along the way.
func fromResponse(resp *resty.Response, err error, payload *faults.Payload) error {
	if err != nil {
		return faults.FromTransport(err)
	}
	if resp.IsError() {
		if payload.Code == "" {
			return faults.Errorf(faults.KindInternal, "unexpected status %d from %s", resp.StatusCode(), resp.Request.URL)
		}
		return faults.New(faults.FromCode(payload.Code), payload.Message)
	}
	return nil
}

// BorrowingsClient implements BorrowingsAPI over HTTP.
type BorrowingsClient struct {
	http *resty.Client
}

// NewBorrowingsClient creates a client with a bounded per-call deadline.
func NewBorrowingsClient(baseURL string, timeout time.Duration) *BorrowingsClient {
	return &BorrowingsClient{http: resty.New().SetBaseURL(baseURL).SetTimeout(timeout)}
}

type borrowingEnvelope struct {
	BorrowRequest *BorrowRequest `json:"borrow_request"`
}

type borrowingsEnvelope struct {
	BorrowRequests []*BorrowRequest `json:"borrow_requests"`
}

func (c *BorrowingsClient) Create(ctx context.Context, input CreateBorrowingInput) (*BorrowRequest, error) {
	var ok borrowingEnvelope
	var fail faults.Payload
	resp, err := c.http.R().SetContext(ctx).
		SetBody(input).SetResult(&ok).SetError(&fail).
		Post("/api/borrowings")
	if err := fromResponse(resp, err, &fail); err != nil {
		return nil, err
	}
	return ok.BorrowRequest, nil
}

func (c *BorrowingsClient) Get(ctx context.Context, requestID string) (*BorrowRequest, error) {
	var ok borrowingEnvelope
	var fail faults.Payload
	resp, err := c.http.R().SetContext(ctx).
		SetResult(&ok).SetError(&fail).
		Get("/api/borrowings/" + requestID)
	if err := fromResponse(resp, err, &fail); err != nil {
		return nil, err
	}
	return ok.BorrowRequest, nil
}

func (c *BorrowingsClient) UpdateStatus(ctx context.Context, requestID, expected, newStatus string, adminNotes *string) (*BorrowRequest, error) {
	var ok borrowingEnvelope
	var fail faults.Payload
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{
			"expected_status": expected,
			"new_status":      newStatus,
			"admin_notes":     adminNotes,
		}).
		SetResult(&ok).SetError(&fail).
		Post("/api/borrowings/" + requestID + "/status")
	if err := fromResponse(resp, err, &fail); err != nil {
		return nil, err
	}
	return ok.BorrowRequest, nil
}

func (c *BorrowingsClient) ListByUser(ctx context.Context, userID string) ([]*BorrowRequest, error) {
	var ok borrowingsEnvelope
	var fail faults.Payload
	resp, err := c.http.R().SetContext(ctx).
		SetResult(&ok).SetError(&fail).
		Get("/api/borrowings/user/" + userID)
	if err := fromResponse(resp, err, &fail); err != nil {
		return nil, err
	}
	return ok.BorrowRequests, nil
}

func (c *BorrowingsClient) ListAll(ctx context.Context, statusFilter string) ([]*BorrowRequest, error) {
	var ok borrowingsEnvelope
	var fail faults.Payload
	req := c.http.R().SetContext(ctx).SetResult(&ok).SetError(&fail)
	if statusFilter != "" {
		req.SetQueryParam("status", statusFilter)
	}
	resp, err := req.Get("/api/borrowings")
	if err := fromResponse(resp, err, &fail); err != nil {
		return nil, err
	}
	return ok.BorrowRequests, nil
}

func (c *BorrowingsClient) History(ctx context.Context, query HistoryQuery) ([]*BorrowRequest, error) {
	var ok borrowingsEnvelope
	var fail faults.Payload
	req := c.http.R().SetContext(ctx).SetResult(&ok).SetError(&fail)
	if query.UserID != "" {
		req.SetQueryParam("user_id", query.UserID)
	}
	if query.CreatedAfter != "" {
		req.SetQueryParam("created_after", query.CreatedAfter)
	}
	if query.CreatedBefore != "" {
		req.SetQueryParam("created_before", query.CreatedBefore)
	}
	resp, err := req.Get("/api/borrowings/history")
	if err := fromResponse(resp, err, &fail); err != nil {
		return nil, err
	}
	return ok.BorrowRequests, nil
}

// ItemsClient implements ItemsAPI over HTTP.
type ItemsClient struct {
	http *resty.Client
}

// NewItemsClient creates a client with a bounded per-call deadline.
func NewItemsClient(baseURL string, timeout time.Duration) *ItemsClient {
	return &ItemsClient{http: resty.New().SetBaseURL(baseURL).SetTimeout(timeout)}
}

type itemEnvelope struct {
	Item *Item `json:"item"`
}

type itemsEnvelope struct {
	Items []*Item `json:"items"`
}

func (c *ItemsClient) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var ok itemEnvelope
	var fail faults.Payload
	resp, err := c.http.R().SetContext(ctx).
		SetResult(&ok).SetError(&fail).
		Get("/api/items/" + itemID)
	if err := fromResponse(resp, err, &fail); err != nil {
		return nil, err
	}
	return ok.Item, nil
}

func (c *ItemsClient) ListItems(ctx context.Context, categoryFilter string) ([]*Item, error) {
	var ok itemsEnvelope
	var fail faults.Payload
	req := c.http.R().SetContext(ctx).SetResult(&ok).SetError(&fail)
	if categoryFilter != "" {
		req.SetQueryParam("category", categoryFilter)
	}
	resp, err := req.Get("/api/items")
	if err := fromResponse(resp, err, &fail); err != nil {
		return nil, err
	}
	return ok.Items, nil
}

func (c *ItemsClient) stockCall(ctx context.Context, action, itemID string, quantity int, borrowRequestID string) (*Item, error) {
	var ok itemEnvelope
	var fail faults.Payload
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]any{"quantity": quantity, "borrow_request_id": borrowRequestID}).
		SetResult(&ok).SetError(&fail).
		Post(fmt.Sprintf("/api/items/%s/%s", itemID, action))
	if err := fromResponse(resp, err, &fail); err != nil {
		return nil, err
	}
	return ok.Item, nil
}

func (c *ItemsClient) Reserve(ctx context.Context, itemID string, quantity int, borrowRequestID string) (*Item, error) {
	return c.stockCall(ctx, "reserve", itemID, quantity, borrowRequestID)
}

func (c *ItemsClient) Release(ctx context.Context, itemID string, quantity int, borrowRequestID string) (*Item, error) {
	return c.stockCall(ctx, "release", itemID, quantity, borrowRequestID)
}

// NotificationsClient implements Notifier over HTTP, fire-and-forget.
type NotificationsClient struct {
	http *resty.Client
}

// NewNotificationsClient creates the best-effort notifications client.
func NewNotificationsClient(baseURL string, timeout time.Duration) *NotificationsClient {
	return &NotificationsClient{http: resty.New().SetBaseURL(baseURL).SetTimeout(timeout)}
}

// Send dispatches the event in the background. Failures are logged and
// dropped: notification delivery never affects a saga outcome.
func (c *NotificationsClient) Send(userID, eventType, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := c.http.R().SetContext(ctx).
			SetBody(map[string]string{"user_id": userID, "type": eventType, "message": message}).
			Post("/api/notifications")
		if err != nil {
			log.Printf("ℹ️ [NOTIFY] dropped %s for user %s: %v", eventType, userID, err)
		}
	}()
}
