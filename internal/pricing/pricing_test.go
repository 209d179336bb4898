package pricing

import (
    "testing"

    "github.com/stretchr/testify/assert"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

func sched(class string, baseCents uint32) *model.Schedule {
    return &model.Schedule{BusClass: class, BaseFareCents: baseCents}
}

func TestQuoteClassMultipliers(t *testing.T) {
    cases := []struct {
        class   string
        perSeat uint32
    }{
        {"STANDARD", 2000},
        {"EXPRESS", 2500},
        {"SLEEPER", 3200},
        {"UNKNOWN", 2000}, // falls back to standard
    }
    for _, tc := range cases {
        t.Run(tc.class, func(t *testing.T) {
            a := Quote(sched(tc.class, 2000), 1, 0, "NONE")
            assert.Equal(t, tc.perSeat, a.FarePerSeatCents)
            assert.Equal(t, tc.perSeat, a.TotalCents)
        })
    }
}

func TestQuoteLoyaltyDiscountOnFareOnly(t *testing.T) {
    // Two express seats at 2500 each with 35kg of baggage.
    a := Quote(sched("EXPRESS", 2000), 2, 35, "GOLD")
    assert.Equal(t, uint32(5000), a.FareCents)
    assert.Equal(t, uint32(1200), a.BaggageFeeCents)
    assert.Equal(t, uint32(500), a.DiscountCents, "10% off the fare, never the baggage fee")
    assert.Equal(t, uint32(5000-500+1200), a.TotalCents)

    silver := Quote(sched("EXPRESS", 2000), 2, 35, "SILVER")
    assert.Equal(t, uint32(250), silver.DiscountCents)

    unknown := Quote(sched("EXPRESS", 2000), 2, 35, "PLATINUM")
    assert.Zero(t, unknown.DiscountCents, "unknown tiers get no discount")
}

func TestBaggageFeeTiers(t *testing.T) {
    cases := []struct {
        kg  uint32
        fee uint32
    }{
        {0, 0},
        {20, 0}, // free allowance boundary
        {21, 500},
        {30, 500},
        {31, 1200},
        {40, 1200},
        {41, 2500},
        {60, 2500},
        {61, 2600}, // 2500 + 1 overweight kg
        {75, 4000}, // 2500 + 15 * 100
    }
    for _, tc := range cases {
        assert.Equal(t, tc.fee, BaggageFee(tc.kg), "weight %dkg", tc.kg)
    }
}

func TestQuoteZeroSeats(t *testing.T) {
    a := Quote(sched("STANDARD", 2000), 0, 0, "GOLD")
    assert.Zero(t, a.FareCents)
    assert.Zero(t, a.DiscountCents)
    assert.Zero(t, a.TotalCents)
}
