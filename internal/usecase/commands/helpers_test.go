//go:build unit

package commands_test

import (
	"testing"
	"time"

	"booking-checkout/internal/domain/cart"
	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/pkg/clock"
	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/usecase/commands"
	"booking-checkout/tests/common/builder"
	"booking-checkout/tests/common/fakeuow"
	commandsmock "booking-checkout/tests/mock/commands"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"
)

var now = time.Date(2029, 12, 20, 10, 0, 0, 0, time.UTC)

type fixture struct {
	uow       *fakeuow.UoW
	gateway   *commandsmock.MockPaymentGateway
	verifier  *commandsmock.MockWebhookVerifier
	scheduler *commandsmock.MockHoldScheduler
	clock     *clock.MockClock
	settings  commands.Settings
	listing   *builder.ListingBuilder
	coupon    *builder.CouponBuilder

	checkout  commands.CheckoutCommands
	reconcile commands.ReconcileCommands
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		uow:       fakeuow.New(),
		gateway:   commandsmock.NewMockPaymentGateway(ctrl),
		verifier:  commandsmock.NewMockWebhookVerifier(ctrl),
		scheduler: commandsmock.NewMockHoldScheduler(ctrl),
		clock:     clock.NewMockClock(now),
		settings:  commands.SettingsFromConfig(config.NewTestConfig()),
		listing:   builder.NewListingBuilder(),
	}
	f.coupon = builder.NewCouponBuilder(f.listing.ID)
	f.uow.AddListing(f.listing.Snapshot())
	f.uow.AddCoupon(f.coupon.Snapshot())

	f.scheduler.EXPECT().Cancel(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	transitioner := commands.NewTransitioner(f.uow, f.scheduler, commands.NopMetrics{}, f.clock, f.settings)
	f.checkout = commands.NewCheckoutUseCase(f.uow, f.gateway, f.scheduler, transitioner, commands.NopMetrics{}, f.clock, f.settings)
	f.reconcile = commands.NewReconcileUseCase(f.uow, f.gateway, f.verifier, f.scheduler, transitioner, f.clock, f.settings)
	return f
}

func (f *fixture) owner() payment.OwnerCredential {
	return payment.OwnerCredential{AccountID: f.listing.MerchantAccountID}
}

func (f *fixture) input(items ...cart.Item) commands.CheckoutInput {
	return commands.CheckoutInput{
		ListingID:   f.listing.ID,
		ServiceDate: builder.Tuesday().String(),
		Items:       items,
		Instrument: payment.Instrument{
			Method: payment.MethodCard,
			Token:  "pm_card_visa",
		},
		Buyer:          cart.Buyer{ID: uuid.New(), Contact: "buyer@example.com"},
		IdempotencyKey: uuid.New(),
	}
}

func (f *fixture) guardians(n int) cart.Item {
	return cart.Item{TicketTypeID: f.listing.GuardianID, Quantity: n}
}

func approved(externalID string) payment.Outcome {
	return payment.Outcome{Kind: payment.OutcomeApproved, ExternalID: externalID}
}
