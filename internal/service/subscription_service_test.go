package service

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/veocreator/internal/config"
	"github.com/digkill/veocreator/internal/lock"
	"github.com/digkill/veocreator/internal/repository"
	"github.com/digkill/veocreator/pkg/logger"
)

var testConfig = config.Config{
	MaxFastVideosPerWeek:    4,
	MaxQualityVideosPerWeek: 1,
	CreditsPerSubscription:  950,
	PaymentCurrency:         "inr",
	StripeWebhookSecret:     "whsec_test",
	StripePriceID:           "price_123",
	StripeSuccessURL:        "https://veo.example.com/?session_id={CHECKOUT_SESSION_ID}",
	StripeCancelURL:         "https://veo.example.com/",
}

const (
	selectPaymentForUpdate = "SELECT id FROM payments WHERE provider = ? AND provider_payment_charge_id = ? FOR UPDATE"
	activateUser           = "UPDATE users SET is_subscribed = 1, has_payment_method = 1, credits = ?"
)

func newSubscriptionFixture(t *testing.T) (*SubscriptionService, sqlmock.Sqlmock, *fakeCache) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache := newFakeCache()
	users := NewUserService(newFakeUserStore(), cache, logger.Discard())
	svc := NewSubscriptionService(testConfig,
		repository.NewUserRepository(db),
		repository.NewPaymentRepository(db),
		lock.NewLocalLocker(),
		users,
		logger.Discard())
	return svc, mock, cache
}

func TestSubscriptionService_Activate(t *testing.T) {
	svc, mock, cache := newSubscriptionFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaymentForUpdate)).
		WithArgs("stripe", "cs_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs("u1", "stripe", "cs_1", "inr", int64(9900), "paid", "{}").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(regexp.QuoteMeta(activateUser)).
		WithArgs(950, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := svc.Activate(context.Background(), ActivationInput{
		UserID: "u1", Provider: ProviderStripe, ChargeID: "cs_1", Currency: "inr", Amount: 9900, Raw: "{}",
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{"u1"}, cache.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionService_ActivateIsIdempotent(t *testing.T) {
	svc, mock, cache := newSubscriptionFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaymentForUpdate)).
		WithArgs("stripe", "cs_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectRollback()

	applied, err := svc.Activate(context.Background(), ActivationInput{UserID: "u1", Provider: ProviderStripe, ChargeID: "cs_1"})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, cache.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionService_ActivateDuplicateInsert(t *testing.T) {
	svc, mock, _ := newSubscriptionFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaymentForUpdate)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	applied, err := svc.Activate(context.Background(), ActivationInput{UserID: "u1", Provider: ProviderStripe, ChargeID: "cs_1"})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionService_ActivateUnknownUserRollsBack(t *testing.T) {
	svc, mock, _ := newSubscriptionFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaymentForUpdate)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectExec(regexp.QuoteMeta(activateUser)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Activate(context.Background(), ActivationInput{UserID: "ghost", Provider: ProviderStripe, ChargeID: "cs_2"})
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionService_ManualActivationGetsChargeID(t *testing.T) {
	svc, mock, _ := newSubscriptionFixture(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaymentForUpdate)).
		WithArgs(ProviderManual, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs("u1", ProviderManual, sqlmock.AnyArg(), "inr", int64(0), "paid", "").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(regexp.QuoteMeta(activateUser)).
		WithArgs(950, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := svc.Activate(context.Background(), ActivationInput{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionService_Deactivate(t *testing.T) {
	svc, mock, cache := newSubscriptionFixture(t)

	mock.ExpectExec(regexp.QuoteMeta("SET is_subscribed = ?")).
		WithArgs(false, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.Deactivate(context.Background(), "u1"))
	assert.Equal(t, []string{"u1"}, cache.invalidated)
}

func TestSubscriptionService_AdjustCredits(t *testing.T) {
	svc, mock, _ := newSubscriptionFixture(t)

	mock.ExpectExec(regexp.QuoteMeta("SET credits = GREATEST(credits + ?, 0)")).
		WithArgs(100, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.AdjustCredits(context.Background(), "u1", 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionService_ResetAllWeeklyQuotas(t *testing.T) {
	svc, mock, cache := newSubscriptionFixture(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE is_subscribed = 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("gone").AddRow("b"))
	reset := regexp.QuoteMeta("UPDATE users SET remaining_fast_videos = ?, remaining_quality_videos = ?")
	mock.ExpectExec(reset).WithArgs(4, 1, "a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(reset).WithArgs(4, 1, "gone").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(reset).WithArgs(4, 1, "b").WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := svc.ResetAllWeeklyQuotas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, cache.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionService_ResetAllStopsOnError(t *testing.T) {
	svc, mock, _ := newSubscriptionFixture(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE is_subscribed = 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET remaining_fast_videos = ?")).
		WithArgs(4, 1, "a").
		WillReturnError(sql.ErrConnDone)

	n, err := svc.ResetAllWeeklyQuotas(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
}
