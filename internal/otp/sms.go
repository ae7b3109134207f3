package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"pearlgen/internal/shared/logger"
	"pearlgen/internal/shared/types"
)

// SMSClient talks to an SMSPool-style code provider: purchase a phone
// number, then poll the order until the SMS lands.
type SMSClient struct {
	baseURL  string
	apiKey   string
	country  string
	service  string
	maxPrice string
	client   *http.Client
}

// NewSMSClient builds the client from the [sms] config section.
func NewSMSClient(cfg types.SMSConf) *SMSClient {
	return &SMSClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		country:  cfg.Country,
		service:  cfg.Service,
		maxPrice: cfg.MaxPrice,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// flexString accepts provider fields that arrive as either a JSON string
// or a bare number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

// PurchaseNumber buys a phone number and returns it with its order id.
func (c *SMSClient) PurchaseNumber(ctx context.Context) (string, string, error) {
	fields := map[string]string{
		"key":       c.apiKey,
		"country":   c.country,
		"service":   c.service,
		"max_price": c.maxPrice,
		"quantity":  "1",
	}

	var payload struct {
		PhoneNumber flexString `json:"phonenumber"`
		OrderID     flexString `json:"order_id"`
		Message     string     `json:"message"`
	}
	if err := c.postForm(ctx, "/purchase/sms", fields, &payload); err != nil {
		return "", "", err
	}

	if payload.PhoneNumber == "" || payload.OrderID == "" {
		return "", "", fmt.Errorf("sms provider returned no number: %s", payload.Message)
	}
	return string(payload.PhoneNumber), string(payload.OrderID), nil
}

// CheckCode polls one order once. ("", nil) means the SMS has not arrived.
func (c *SMSClient) CheckCode(ctx context.Context, orderID string) (string, error) {
	fields := map[string]string{
		"orderid": orderID,
		"key":     c.apiKey,
	}

	var payload struct {
		SMS flexString `json:"sms"`
	}
	if err := c.postForm(ctx, "/sms/check", fields, &payload); err != nil {
		return "", err
	}
	return string(payload.SMS), nil
}

// postForm sends a multipart form request and decodes the JSON response.
// The provider expects multipart fields even for simple key/value pairs.
func (c *SMSClient) postForm(ctx context.Context, path string, fields map[string]string, out interface{}) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms provider returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("sms provider sent invalid JSON: %w", err)
	}
	return nil
}

// SMSChannel adapts the SMS provider to the resolver's Channel contract.
type SMSChannel struct {
	client *SMSClient
}

// NewSMSChannel wraps an SMSClient as a verification channel.
func NewSMSChannel(client *SMSClient) *SMSChannel {
	return &SMSChannel{client: client}
}

func (c *SMSChannel) Name() string { return ChannelSMS }

// Open purchases a number for this identity; the order id is the request
// id polled afterwards.
func (c *SMSChannel) Open(ctx context.Context, email string) (Session, error) {
	phone, orderID, err := c.client.PurchaseNumber(ctx)
	if err != nil {
		return nil, err
	}
	logger.WithComponent("OTP/SMS").Debug().
		Str("email", email).
		Str("order_id", orderID).
		Str("number", phone).
		Msg("Purchased verification number.")
	return &smsSession{client: c.client, orderID: orderID}, nil
}

type smsSession struct {
	client  *SMSClient
	orderID string
}

func (s *smsSession) Poll(ctx context.Context) (string, error) {
	return s.client.CheckCode(ctx, s.orderID)
}

func (s *smsSession) Close() error { return nil }
