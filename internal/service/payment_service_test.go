package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/digkill/veocreator/internal/models"
	"github.com/digkill/veocreator/pkg/logger"
)

func signedEvent(t *testing.T, body string) (payload []byte, header string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(body),
		Secret:  testConfig.StripeWebhookSecret,
	})
	return signed.Payload, signed.Header
}

const checkoutCompleted = `{
  "id": "evt_1",
  "object": "event",
  "api_version": "2020-08-27",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_1",
    "object": "checkout.session",
    "client_reference_id": "u1",
    "amount_total": 9900,
    "currency": "inr",
    "payment_status": "paid"
  }}
}`

func newPaymentFixture(t *testing.T) (*PaymentService, sqlmock.Sqlmock) {
	t.Helper()
	subs, mock, _ := newSubscriptionFixture(t)
	return NewPaymentService(testConfig, subs, logger.Discard()), mock
}

func TestHandleStripeWebhook_CheckoutCompletedActivates(t *testing.T) {
	svc, mock := newPaymentFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaymentForUpdate)).
		WithArgs("stripe", "cs_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs("u1", "stripe", "cs_1", "inr", int64(9900), "paid", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(activateUser)).
		WithArgs(950, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payload, header := signedEvent(t, checkoutCompleted)
	require.NoError(t, svc.HandleStripeWebhook(context.Background(), payload, header))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleStripeWebhook_RedeliveryCreditsOnce(t *testing.T) {
	svc, mock := newPaymentFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaymentForUpdate)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(activateUser)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaymentForUpdate)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectRollback()

	payload, header := signedEvent(t, checkoutCompleted)
	require.NoError(t, svc.HandleStripeWebhook(context.Background(), payload, header))
	require.NoError(t, svc.HandleStripeWebhook(context.Background(), payload, header))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleStripeWebhook_BadSignature(t *testing.T) {
	svc, _ := newPaymentFixture(t)

	err := svc.HandleStripeWebhook(context.Background(), []byte(checkoutCompleted), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidWebhook)
}

func TestHandleStripeWebhook_UnpaidCheckoutIgnored(t *testing.T) {
	svc, mock := newPaymentFixture(t)

	payload, header := signedEvent(t, `{"id":"evt_2","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_2","object":"checkout.session","client_reference_id":"u1","payment_status":"unpaid"}}}`)
	require.NoError(t, svc.HandleStripeWebhook(context.Background(), payload, header))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleStripeWebhook_SubscriptionDeleted(t *testing.T) {
	svc, mock := newPaymentFixture(t)

	mock.ExpectExec(regexp.QuoteMeta("SET is_subscribed = ?")).
		WithArgs(false, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	payload, header := signedEvent(t, `{"id":"evt_3","object":"event","type":"customer.subscription.deleted",
		"data":{"object":{"id":"sub_1","object":"subscription","metadata":{"user_id":"u1"}}}}`)
	require.NoError(t, svc.HandleStripeWebhook(context.Background(), payload, header))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleStripeWebhook_OtherEventsIgnored(t *testing.T) {
	svc, mock := newPaymentFixture(t)

	for _, body := range []string{
		`{"id":"evt_4","object":"event","type":"invoice.payment_failed","data":{"object":{"id":"in_1","object":"invoice","customer_email":"a@example.com"}}}`,
		`{"id":"evt_5","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`,
	} {
		payload, header := signedEvent(t, body)
		require.NoError(t, svc.HandleStripeWebhook(context.Background(), payload, header))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCheckout(t *testing.T) {
	svc, _ := newPaymentFixture(t)
	var got *stripe.CheckoutSessionParams
	svc.WithSessionCreator(func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = params
		return &stripe.CheckoutSession{ID: "cs_9", URL: "https://checkout.stripe.com/c/pay/cs_9"}, nil
	})

	url, err := svc.CreateCheckout(context.Background(), &models.User{ID: "u1", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_9", url)

	require.NotNil(t, got)
	assert.Equal(t, "u1", stripe.StringValue(got.ClientReferenceID))
	assert.Equal(t, "ada@example.com", stripe.StringValue(got.CustomerEmail))
	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), stripe.StringValue(got.Mode))
	assert.Equal(t, "price_123", stripe.StringValue(got.LineItems[0].Price))
	assert.Equal(t, "u1", got.SubscriptionData.Metadata["user_id"])
}

func TestCreateCheckout_Errors(t *testing.T) {
	svc, _ := newPaymentFixture(t)
	svc.WithSessionCreator(func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("stripe unavailable")
	})
	_, err := svc.CreateCheckout(context.Background(), &models.User{ID: "u1"})
	assert.Error(t, err)

	cfg := testConfig
	cfg.StripePriceID = ""
	unconfigured := NewPaymentService(cfg, nil, logger.Discard())
	_, err = unconfigured.CreateCheckout(context.Background(), &models.User{ID: "u1"})
	assert.ErrorIs(t, err, ErrPaymentUnavailable)
}
