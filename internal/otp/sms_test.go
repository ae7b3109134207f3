package otp

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pearlgen/internal/shared/types"
)

func newTestSMSClient(t *testing.T) *SMSClient {
	t.Helper()
	client := NewSMSClient(types.SMSConf{
		BaseURL:  "https://sms.test",
		APIKey:   "test-key",
		Country:  "GB",
		Service:  "39",
		MaxPrice: "0.20",
	})
	httpmock.ActivateNonDefault(client.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func TestSMSClient_PurchaseNumber(t *testing.T) {
	client := newTestSMSClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://sms.test/purchase/sms",
		httpmock.NewStringResponder(200, `{"phonenumber":"447911123456","order_id":98765}`))

	phone, orderID, err := client.PurchaseNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "447911123456", phone)
	assert.Equal(t, "98765", orderID)
}

func TestSMSClient_PurchaseNumber_NoStock(t *testing.T) {
	client := newTestSMSClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://sms.test/purchase/sms",
		httpmock.NewStringResponder(200, `{"message":"no numbers available"}`))

	_, _, err := client.PurchaseNumber(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no numbers available")
}

func TestSMSClient_CheckCode(t *testing.T) {
	client := newTestSMSClient(t)

	// Pending first, then delivered. Providers send the code as a string
	// or a bare number depending on endpoint version; accept both.
	responses := []string{
		`{"sms":null,"status":1}`,
		`{"sms":339108,"status":3}`,
	}
	call := 0
	httpmock.RegisterResponder(http.MethodPost, "https://sms.test/sms/check",
		func(req *http.Request) (*http.Response, error) {
			body := responses[call]
			if call < len(responses)-1 {
				call++
			}
			return httpmock.NewStringResponse(200, body), nil
		})

	code, err := client.CheckCode(context.Background(), "98765")
	require.NoError(t, err)
	assert.Empty(t, code)

	code, err = client.CheckCode(context.Background(), "98765")
	require.NoError(t, err)
	assert.Equal(t, "339108", code)
}

func TestSMSClient_ServerError(t *testing.T) {
	client := newTestSMSClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://sms.test/sms/check",
		httpmock.NewStringResponder(500, "internal error"))

	_, err := client.CheckCode(context.Background(), "98765")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSMSChannel_OpenAndPoll(t *testing.T) {
	client := newTestSMSClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://sms.test/purchase/sms",
		httpmock.NewStringResponder(200, `{"phonenumber":"447911123456","order_id":"55"}`))
	httpmock.RegisterResponder(http.MethodPost, "https://sms.test/sms/check",
		httpmock.NewStringResponder(200, `{"sms":"118822"}`))

	channel := NewSMSChannel(client)
	assert.Equal(t, ChannelSMS, channel.Name())

	session, err := channel.Open(context.Background(), "a@x.com")
	require.NoError(t, err)
	defer session.Close()

	code, err := session.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "118822", code)
}
