package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbouombouo/studiostay-backend/pkg/config"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
)

// Quote is the server-computed pricing breakdown in integer minor units.
// Client-sent totals are never trusted; every reservation is priced here.
type Quote struct {
	Nights           int    `json:"nights"`
	SubtotalCents    int    `json:"subtotal_cents"`
	ServiceFeeCents  int    `json:"service_fee_cents"`
	TaxCents         int    `json:"tax_cents"`
	CleaningFeeCents int    `json:"cleaning_fee_cents"`
	TotalCents       int    `json:"total_cents"`
	Currency         string `json:"currency"`
}

// Nights returns the whole-night count between check-in and check-out,
// rounding partial days up.
func Nights(checkIn, checkOut time.Time) int {
	diff := checkOut.Sub(checkIn)
	if diff <= 0 {
		return 0
	}
	nights := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) != 0 {
		nights++
	}
	return nights
}

// ComputeQuote prices a stay from the studio's nightly rate. Percent fees are
// computed on the nightly subtotal only; the cleaning fee is a flat add-on.
func ComputeQuote(checkIn, checkOut time.Time, pricePerNightCents, cleaningFeeCents int, cfg config.BookingConfig) (Quote, error) {
	nights := Nights(checkIn, checkOut)
	if nights <= 0 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "check-out must be after check-in")
	}
	if pricePerNightCents <= 0 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "nightly price must be positive")
	}

	subtotal := decimal.NewFromInt(int64(pricePerNightCents)).Mul(decimal.NewFromInt(int64(nights)))
	serviceFee := subtotal.Mul(decimal.NewFromInt(int64(cfg.ServiceFeePercent))).Div(decimal.NewFromInt(100)).Round(0)
	tax := subtotal.Mul(decimal.NewFromInt(int64(cfg.TaxPercent))).Div(decimal.NewFromInt(100)).Round(0)
	total := subtotal.Add(serviceFee).Add(tax).Add(decimal.NewFromInt(int64(cleaningFeeCents)))

	return Quote{
		Nights:           nights,
		SubtotalCents:    int(subtotal.IntPart()),
		ServiceFeeCents:  int(serviceFee.IntPart()),
		TaxCents:         int(tax.IntPart()),
		CleaningFeeCents: cleaningFeeCents,
		TotalCents:       int(total.IntPart()),
		Currency:         cfg.Currency,
	}, nil
}
