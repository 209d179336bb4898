// Package pricing computes fare, baggage and loyalty amounts for a
// booking draft.  The rules are fixed lookup tables, not algorithms:
// a class multiplier on the schedule's base fare, weight-tiered
// baggage fees, and a percentage discount per loyalty tier.  Quote is
// a pure function so callers can recompute at any wizard step and get
// the same answer.
package pricing

import "github.com/iliyamo/bus-seat-reservation/internal/model"

// Class multipliers in percent of the schedule's base fare.
var classMultiplierPct = map[string]uint32{
    "STANDARD": 100,
    "EXPRESS":  125,
    "SLEEPER":  160,
}

// Baggage fee tiers by total weight.  The first tier covers the free
// allowance included with every ticket.
var baggageTiers = []struct {
    maxKg    uint32
    feeCents uint32
}{
    {maxKg: 20, feeCents: 0},
    {maxKg: 30, feeCents: 500},
    {maxKg: 40, feeCents: 1200},
    {maxKg: 60, feeCents: 2500},
}

// overweightPerKgCents applies beyond the last tier.
const overweightPerKgCents = 100

// Loyalty discounts in percent off the seat fare (baggage fees are
// never discounted).
var loyaltyDiscountPct = map[string]uint32{
    "NONE":   0,
    "SILVER": 5,
    "GOLD":   10,
}

// Amounts is the priced breakdown attached to a booking draft.
type Amounts struct {
    FarePerSeatCents uint32 `json:"fare_per_seat_cents"`
    SeatCount        uint32 `json:"seat_count"`
    FareCents        uint32 `json:"fare_cents"`
    BaggageFeeCents  uint32 `json:"baggage_fee_cents"`
    DiscountCents    uint32 `json:"discount_cents"`
    TotalCents       uint32 `json:"total_cents"`
}

// Quote prices a draft: seatCount seats on the schedule, the given
// total baggage weight, and the passenger's loyalty tier.  Unknown
// classes fall back to STANDARD and unknown tiers to NONE.
func Quote(sched *model.Schedule, seatCount, baggageKg uint32, loyaltyTier string) Amounts {
    mult, ok := classMultiplierPct[sched.BusClass]
    if !ok {
        mult = classMultiplierPct["STANDARD"]
    }
    perSeat := sched.BaseFareCents * mult / 100

    fare := perSeat * seatCount

    disc, ok := loyaltyDiscountPct[loyaltyTier]
    if !ok {
        disc = 0
    }
    discount := fare * disc / 100

    return Amounts{
        FarePerSeatCents: perSeat,
        SeatCount:        seatCount,
        FareCents:        fare,
        BaggageFeeCents:  BaggageFee(baggageKg),
        DiscountCents:    discount,
        TotalCents:       fare - discount + BaggageFee(baggageKg),
    }
}

// BaggageFee returns the fee for a total baggage weight.
func BaggageFee(weightKg uint32) uint32 {
    for _, tier := range baggageTiers {
        if weightKg <= tier.maxKg {
            return tier.feeCents
        }
    }
    last := baggageTiers[len(baggageTiers)-1]
    return last.feeCents + (weightKg-last.maxKg)*overweightPerKgCents
}
