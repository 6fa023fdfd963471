package quote

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fescii/Stahla-sub005/internal/catalog"
	"github.com/fescii/Stahla-sub005/internal/distance"
	"github.com/fescii/Stahla-sub005/internal/recorder"
)

// intermediateScale is the digit scale used between multiplication steps;
// final money rounds half-away-from-zero to 2 digits.
const intermediateScale = 6

// CatalogSource yields the current snapshot.
type CatalogSource interface {
	Current(ctx context.Context) (*catalog.Snapshot, error)
}

// Resolver resolves distance between the delivery address and a branch.
type Resolver interface {
	Cached(ctx context.Context, origin, destination string) (*distance.Record, bool, error)
	Resolve(ctx context.Context, origin, destination string) (*distance.Record, error)
}

// Builder computes quotes. Each Build call takes one consistent snapshot
// reference; concurrent builds share nothing mutable.
type Builder struct {
	catalog    CatalogSource
	resolver   Resolver
	rec        *recorder.Recorder
	localMiles func() float64
}

// NewBuilder wires the quote builder. localMiles is re-read per build so the
// local-delivery threshold can be hot-updated.
func NewBuilder(cs CatalogSource, resolver Resolver, rec *recorder.Recorder, localMiles func() float64) *Builder {
	return &Builder{catalog: cs, resolver: resolver, rec: rec, localMiles: localMiles}
}

// Build validates the request and produces a priced quote. Errors are always
// *Error; an unexpected panic in any phase surfaces as kind internal.
func (b *Builder) Build(ctx context.Context, req Request) (res *Result, qerr *Error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[quote] build panic: %v", r)
			res, qerr = nil, &Error{Kind: KindInternal, Message: "internal error"}
		}
		status := recorder.StatusOK
		switch {
		case ctx.Err() != nil:
			status = recorder.StatusCancelled
		case qerr != nil:
			status = recorder.StatusError
		}
		b.rec.Record(recorder.ServiceQuote, "build", status, time.Since(start))
	}()

	startDate, qerr := validate(req)
	if qerr != nil {
		return nil, qerr
	}

	snap, err := b.catalog.Current(ctx)
	if err != nil {
		return nil, &Error{Kind: KindCatalogUnavailable, Message: "pricing catalog not available yet"}
	}

	product, qerr := resolveProduct(snap, req)
	if qerr != nil {
		return nil, qerr
	}

	rec, notes, qerr := b.resolveDistance(ctx, snap, req.DeliveryLocation)
	if qerr != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindDeadline, Message: "quote deadline exceeded"}
		}
		return nil, qerr
	}

	factor, windowLabel := snap.Config.SeasonalFactorFor(startDate)

	tier, ok := product.TierForDays(req.RentalDays)
	if !ok {
		return nil, &Error{Kind: KindInvalidRequest, Field: "rental_days", Message: fmt.Sprintf("no rate bracket covers %d days", req.RentalDays)}
	}
	rate, ruleApplied := selectRate(tier, req.RentalDays, req.UsageType)

	items := []LineItem{trailerLine(product, rate, ruleApplied, req.RentalDays, factor)}
	for _, ex := range req.Extras {
		extra := snap.Extras[catalog.NormalizeID(ex.ID)]
		items = append(items, extraLine(extra, ex.Qty, factor))
	}

	deliveryTier, ok := snap.Config.TierForMiles(rec.Miles)
	if !ok {
		return nil, &Error{Kind: KindInternal, Message: "no delivery tier covers resolved distance"}
	}
	delivery := deliveryLine(deliveryTier, rec.Miles)
	delivery.Local = rec.Miles.LessThan(decimal.NewFromFloat(b.localMiles()))

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal)
	}
	grand := round2(subtotal.Add(delivery.Subtotal))

	if notes == nil {
		notes = []string{}
	}
	return &Result{
		RequestEcho:    req,
		LineItems:      items,
		Delivery:       delivery,
		Seasonal:       Seasonal{Multiplier: factor, WindowLabel: windowLabel},
		Totals:         Totals{Subtotal: round2(subtotal), GrandTotal: grand},
		CatalogVersion: snap.Version,
		ComputedAt:     time.Now().UTC(),
		LatencyMs:      time.Since(start).Milliseconds(),
		Notes:          notes,
	}, nil
}

func validate(req Request) (time.Time, *Error) {
	invalid := func(field, msg string) (time.Time, *Error) {
		return time.Time{}, &Error{Kind: KindInvalidRequest, Field: field, Message: msg}
	}
	if req.DeliveryLocation == "" {
		return invalid("delivery_location", "required")
	}
	if req.TrailerTypeID == "" {
		return invalid("trailer_type_id", "required")
	}
	if req.RentalDays < 1 {
		return invalid("rental_days", "must be at least 1")
	}
	if req.UsageType != UsageEvent && req.UsageType != UsageCommercial {
		return invalid("usage_type", "must be event or commercial")
	}
	startDate, err := time.Parse("2006-01-02", req.RentalStartDate)
	if err != nil {
		return invalid("rental_start_date", "must be YYYY-MM-DD")
	}
	for i, ex := range req.Extras {
		if ex.ID == "" {
			return invalid(fmt.Sprintf("extras[%d].id", i), "required")
		}
		if ex.Qty < 1 {
			return invalid(fmt.Sprintf("extras[%d].qty", i), "must be at least 1")
		}
	}
	return startDate, nil
}

func resolveProduct(snap *catalog.Snapshot, req Request) (*catalog.ProductRule, *Error) {
	product, ok := snap.Products[catalog.NormalizeID(req.TrailerTypeID)]
	if !ok {
		return nil, &Error{Kind: KindInvalidRequest, Field: "trailer_type_id", Message: "unknown trailer type"}
	}
	for i, ex := range req.Extras {
		if _, ok := snap.Extras[catalog.NormalizeID(ex.ID)]; !ok {
			return nil, &Error{Kind: KindInvalidRequest, Field: fmt.Sprintf("extras[%d].id", i), Message: "unknown extra"}
		}
	}
	return &product, nil
}

// resolveDistance finds the nearest branch. Cached records win outright;
// otherwise every branch is resolved in parallel and soft per-branch
// failures become notes as long as one branch succeeds.
func (b *Builder) resolveDistance(ctx context.Context, snap *catalog.Snapshot, address string) (*distance.Record, []string, *Error) {
	var best *distance.Record
	for _, br := range snap.Branches {
		if rec, found, err := b.resolver.Cached(ctx, address, br.Address); err == nil && found {
			if best == nil || rec.Miles.LessThan(best.Miles) {
				best = rec
			}
		}
	}
	if best != nil {
		return best, nil, nil
	}

	recs := make([]*distance.Record, len(snap.Branches))
	errs := make([]error, len(snap.Branches))
	var wg sync.WaitGroup
	for i, br := range snap.Branches {
		wg.Add(1)
		go func(i int, br catalog.Branch) {
			defer wg.Done()
			recs[i], errs[i] = b.resolver.Resolve(ctx, address, br.Address)
		}(i, br)
	}
	wg.Wait()

	var notes []string
	allGeocoding := true
	for i := range recs {
		if errs[i] != nil {
			if !distance.IsGeocodingFailed(errs[i]) {
				allGeocoding = false
			}
			notes = append(notes, fmt.Sprintf("branch %s distance resolution failed", snap.Branches[i].ID))
			continue
		}
		allGeocoding = false
		if best == nil || recs[i].Miles.LessThan(best.Miles) {
			best = recs[i]
		}
	}
	if best == nil {
		if allGeocoding {
			return nil, nil, &Error{Kind: KindUndeliverable, Message: "delivery address could not be resolved"}
		}
		return nil, nil, &Error{Kind: KindFallbackUnavailable, Message: "distance lookup unavailable and no cached record"}
	}
	if best.Method == distance.MethodFallbackGeocoded {
		notes = append(notes, "fallback distance used")
	}
	return best, notes, nil
}

func selectRate(tier catalog.DurationTier, days int, usageType string) (decimal.Decimal, string) {
	switch {
	case days <= 7 && usageType == UsageEvent:
		return tier.EventRate, "event_rate"
	case days <= 28:
		return tier.Rate28Day, "rate_28_day"
	case days <= 75:
		return tier.Rate2To5Month, "rate_2_5_month"
	default:
		return tier.Rate6PlusMonth, "rate_6_plus_month"
	}
}

func trailerLine(product *catalog.ProductRule, rate decimal.Decimal, rule string, days int, factor decimal.Decimal) LineItem {
	scaled := rate.Mul(decimal.NewFromInt(int64(days))).Mul(factor).Round(intermediateScale)
	return LineItem{
		Label:       product.ID,
		UnitPrice:   rate,
		Qty:         days,
		Subtotal:    round2(scaled),
		RuleApplied: rule,
	}
}

func extraLine(extra catalog.ExtraItem, qty int, factor decimal.Decimal) LineItem {
	rule := "extra"
	applied := factor
	if extra.SeasonalExempt {
		applied = decimal.NewFromInt(1)
		rule = "extra_seasonal_exempt"
	}
	scaled := extra.UnitPrice.Mul(decimal.NewFromInt(int64(qty))).Mul(applied).Round(intermediateScale)
	return LineItem{
		Label:       extra.Label,
		UnitPrice:   extra.UnitPrice,
		Qty:         qty,
		Subtotal:    round2(scaled),
		RuleApplied: rule,
	}
}

func deliveryLine(tier catalog.DistanceTier, miles decimal.Decimal) Delivery {
	subtotal := tier.BaseFee.Add(miles.Mul(tier.PerMile).Round(intermediateScale))
	return Delivery{
		Miles:    miles,
		Tier:     tier.Name,
		PerMile:  tier.PerMile,
		Base:     tier.BaseFee,
		Subtotal: round2(subtotal),
	}
}

// round2 rounds half-away-from-zero to 2 digits.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
