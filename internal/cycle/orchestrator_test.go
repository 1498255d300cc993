package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"TreasuryCycler/internal/model"
	"TreasuryCycler/internal/venue"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeTreasury struct {
	pos        uint64
	native     decimal.Decimal
	settlement decimal.Decimal
	err        error
}

func (f *fakeTreasury) CurrentPosition(context.Context) (uint64, error) { return f.pos, f.err }
func (f *fakeTreasury) NativeBalance(context.Context) (decimal.Decimal, error) {
	return f.native, f.err
}
func (f *fakeTreasury) SettlementBalance(context.Context) (decimal.Decimal, error) {
	return f.settlement, f.err
}

type fakeConverter struct {
	quoted   []decimal.Decimal
	out      decimal.Decimal
	noRoute  bool
	quoteErr error
	swapErr  error
	swaps    int
}

func (f *fakeConverter) Quote(_ context.Context, amount decimal.Decimal) (*model.SwapQuote, error) {
	f.quoted = append(f.quoted, amount)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	if f.noRoute {
		return nil, nil
	}
	return &model.SwapQuote{InAmount: amount, OutAmount: f.out}, nil
}

func (f *fakeConverter) ExecuteSwap(_ context.Context, q *model.SwapQuote) (decimal.Decimal, error) {
	f.swaps++
	if f.swapErr != nil {
		return decimal.Zero, f.swapErr
	}
	return q.OutAmount, nil
}

type transfer struct {
	dest   string
	amount decimal.Decimal
}

type fakeRouter struct {
	transfers []transfer
	err       error
}

func (f *fakeRouter) Transfer(_ context.Context, dest string, amount decimal.Decimal) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.transfers = append(f.transfers, transfer{dest, amount})
	return "sig-1", nil
}

type fakeVenue struct {
	closes   []float64
	orders   []model.OrderIntent
	orderErr error
}

func (f *fakeVenue) Name() string { return "fake" }
func (f *fakeVenue) FetchRecentCloses(context.Context, string, int) []float64 {
	return f.closes
}
func (f *fakeVenue) PlaceOrder(_ context.Context, intent model.OrderIntent) (*model.OrderResult, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, intent)
	return &model.OrderResult{OrderID: "o-1", Status: model.OrderFilled, FillPrice: 60000}, nil
}

type memStore struct {
	state model.CycleState
	saves int
	err   error
}

func (m *memStore) Load() model.CycleState { return m.state }
func (m *memStore) Save(st model.CycleState) error {
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.state = st
	return nil
}

type fixture struct {
	treasury  *fakeTreasury
	converter *fakeConverter
	router    *fakeRouter
	venue     *fakeVenue
	store     *memStore
	settings  Settings
}

func newFixture() *fixture {
	return &fixture{
		treasury:  &fakeTreasury{pos: 1000},
		converter: &fakeConverter{},
		router:    &fakeRouter{},
		venue:     &fakeVenue{},
		store:     &memStore{},
		settings: Settings{
			Symbol:           "BTC-USD",
			Notional:         d("200"),
			Leverage:         20,
			FeeReserve:       d("0.02"),
			RoutingThreshold: d("25"),
			Lookback:         300,
			CallTimeout:      time.Second,
		},
	}
}

func (f *fixture) orchestrator() *Orchestrator {
	o := New(f.treasury, f.converter, f.router, f.venue, f.store, f.settings, zerolog.Nop())
	o.newID = func() string { return "cid-test" }
	return o
}

func zigzag(n int, up, down float64) []float64 {
	out := make([]float64, n)
	p := 60000.0
	for i := range out {
		out[i] = p
		if i%2 == 0 {
			p += up
		} else {
			p -= down
		}
	}
	return out
}

func TestRun_ConvertsAboveReserveAndCarriesWithoutDestination(t *testing.T) {
	f := newFixture()
	f.treasury.native = d("0.05")
	f.converter.out = d("4.5")

	rep, err := f.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.converter.quoted) != 1 || !f.converter.quoted[0].Equal(d("0.03")) {
		t.Fatalf("expected a quote for 0.03, got %v", f.converter.quoted)
	}
	if len(f.router.transfers) != 0 {
		t.Errorf("expected no transfer, got %v", f.router.transfers)
	}
	if !f.store.state.CarriedSettlementBalance.Equal(d("4.5")) {
		t.Errorf("expected carry 4.5, got %s", f.store.state.CarriedSettlementBalance)
	}
	if !rep.Total.Equal(d("4.5")) || !rep.CarriedOut.Equal(rep.Total) {
		t.Errorf("unexpected report %+v", rep)
	}
	if f.store.state.LastProcessedPosition != 1000 {
		t.Errorf("expected position 1000, got %d", f.store.state.LastProcessedPosition)
	}
}

func TestRun_RoutesCarryAtThreshold(t *testing.T) {
	f := newFixture()
	f.store.state = model.CycleState{LastProcessedPosition: 900, CarriedSettlementBalance: d("30")}
	f.settings.RoutingDestination = "DepositAddr111"

	rep, err := f.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.router.transfers) != 1 {
		t.Fatalf("expected one transfer, got %d", len(f.router.transfers))
	}
	tr := f.router.transfers[0]
	if tr.dest != "DepositAddr111" || !tr.amount.Equal(d("30")) {
		t.Errorf("unexpected transfer %+v", tr)
	}
	if !f.store.state.CarriedSettlementBalance.IsZero() {
		t.Errorf("expected carry reset, got %s", f.store.state.CarriedSettlementBalance)
	}
	if rep.RouteSignature != "sig-1" || !rep.Routed.Equal(d("30")) {
		t.Errorf("unexpected report %+v", rep)
	}
	if len(f.converter.quoted) != 0 {
		t.Errorf("expected no conversion with zero native balance, got %v", f.converter.quoted)
	}
}

func TestRun_BelowThresholdCarries(t *testing.T) {
	f := newFixture()
	f.store.state.CarriedSettlementBalance = d("10")
	f.treasury.settlement = d("14.99")
	f.settings.RoutingDestination = "DepositAddr111"

	if _, err := f.orchestrator().Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.router.transfers) != 0 {
		t.Errorf("expected no transfer below threshold")
	}
	if !f.store.state.CarriedSettlementBalance.Equal(d("24.99")) {
		t.Errorf("expected carry 24.99, got %s", f.store.state.CarriedSettlementBalance)
	}
}

func TestRun_UptrendPlacesBuyOrder(t *testing.T) {
	f := newFixture()
	f.venue.closes = zigzag(120, 3, 2)

	rep, err := f.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Signal != model.SignalLong {
		t.Fatalf("expected LONG, got %s", rep.Signal)
	}
	if len(f.venue.orders) != 1 {
		t.Fatalf("expected one order, got %d", len(f.venue.orders))
	}
	o := f.venue.orders[0]
	if o.Side != model.SideBuy || o.Leverage != 20 || !o.Notional.Equal(d("200")) || o.Symbol != "BTC-USD" {
		t.Errorf("unexpected intent %+v", o)
	}
	if o.ClientOrderID != "cid-test" {
		t.Errorf("expected client order id, got %q", o.ClientOrderID)
	}
	if rep.Order == nil || rep.Order.OrderID != "o-1" {
		t.Errorf("expected order result in report, got %+v", rep.Order)
	}
}

func TestRun_DowntrendPlacesSellOrder(t *testing.T) {
	f := newFixture()
	f.venue.closes = zigzag(120, 2, 3)

	if _, err := f.orchestrator().Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.venue.orders) != 1 || f.venue.orders[0].Side != model.SideSell {
		t.Fatalf("expected one sell order, got %+v", f.venue.orders)
	}
}

func TestRun_PriceFetchFailureIsFlatAndStillSaves(t *testing.T) {
	f := newFixture()
	f.venue.closes = []float64{}
	f.treasury.pos = 1234

	rep, err := f.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Signal != model.SignalFlat || len(f.venue.orders) != 0 {
		t.Errorf("expected FLAT with no order, got %s / %d orders", rep.Signal, len(f.venue.orders))
	}
	if f.store.saves != 1 || f.store.state.LastProcessedPosition != 1234 {
		t.Errorf("expected state saved at 1234, got %+v after %d saves", f.store.state, f.store.saves)
	}
}

func TestRun_RejectedOrderSkipsSave(t *testing.T) {
	f := newFixture()
	f.store.state = model.CycleState{LastProcessedPosition: 5, CarriedSettlementBalance: d("3")}
	f.venue.closes = zigzag(120, 3, 2)
	f.venue.orderErr = &venue.OrderRejectedError{Status: 400, Message: "insufficient margin"}

	rep, err := f.orchestrator().Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageOrder {
		t.Fatalf("expected order stage error, got %v", err)
	}
	var rej *venue.OrderRejectedError
	if !errors.As(err, &rej) {
		t.Errorf("expected wrapped OrderRejectedError, got %v", err)
	}
	if f.store.saves != 0 {
		t.Errorf("expected no save, got %d", f.store.saves)
	}
	if rep.FailedStage != StageOrder || rep.Succeeded() {
		t.Errorf("unexpected report stage %q", rep.FailedStage)
	}
}

func TestRun_TreasuryFailureSkipsEverything(t *testing.T) {
	f := newFixture()
	f.treasury.err = errors.New("rpc unavailable")
	f.settings.RoutingDestination = "DepositAddr111"
	f.store.state.CarriedSettlementBalance = d("100")

	rep, err := f.orchestrator().Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageTreasury {
		t.Fatalf("expected treasury stage error, got %v", err)
	}
	if f.store.saves != 0 || len(f.router.transfers) != 0 || len(f.venue.orders) != 0 {
		t.Errorf("expected no side effects after treasury failure")
	}
	if rep.Err == "" {
		t.Error("expected error text in report")
	}
}

func TestRun_QuoteProblemsConvertNothing(t *testing.T) {
	for _, conv := range []*fakeConverter{
		{quoteErr: errors.New("timeout")},
		{noRoute: true},
	} {
		f := newFixture()
		f.treasury.native = d("1")
		f.converter = conv

		rep, err := f.orchestrator().Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !rep.Converted.IsZero() || conv.swaps != 0 {
			t.Errorf("expected no conversion, got %s after %d swaps", rep.Converted, conv.swaps)
		}
		if f.store.saves != 1 {
			t.Errorf("expected state saved")
		}
	}
}

func TestRun_SwapFailureAborts(t *testing.T) {
	f := newFixture()
	f.treasury.native = d("1")
	f.converter.out = d("150")
	f.converter.swapErr = errors.New("blockhash expired")

	_, err := f.orchestrator().Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageConvert {
		t.Fatalf("expected convert stage error, got %v", err)
	}
	if f.store.saves != 0 {
		t.Errorf("expected no save")
	}
}

func TestRun_NativeAtReserveIsNotConverted(t *testing.T) {
	f := newFixture()
	f.treasury.native = d("0.02")

	if _, err := f.orchestrator().Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.converter.quoted) != 0 {
		t.Errorf("expected no quote at the reserve, got %v", f.converter.quoted)
	}
}

func TestRun_RouteFailureKeepsPreviousState(t *testing.T) {
	f := newFixture()
	f.store.state = model.CycleState{LastProcessedPosition: 7, CarriedSettlementBalance: d("40")}
	f.settings.RoutingDestination = "DepositAddr111"
	f.router.err = errors.New("send failed")

	_, err := f.orchestrator().Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageRoute {
		t.Fatalf("expected route stage error, got %v", err)
	}
	if !f.store.state.CarriedSettlementBalance.Equal(d("40")) || f.store.state.LastProcessedPosition != 7 {
		t.Errorf("expected untouched state, got %+v", f.store.state)
	}
}

func TestRun_SaveFailureIsReported(t *testing.T) {
	f := newFixture()
	f.store.err = errors.New("disk full")

	rep, err := f.orchestrator().Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageSave {
		t.Fatalf("expected save stage error, got %v", err)
	}
	if rep.FailedStage != StageSave {
		t.Errorf("expected failed stage save, got %q", rep.FailedStage)
	}
}

// Routed plus carried always equals everything that came in over a run of cycles.
func TestRun_AccountingAcrossCycles(t *testing.T) {
	f := newFixture()
	f.settings.RoutingDestination = "DepositAddr111"
	o := f.orchestrator()

	inflows := []string{"7", "9.5", "12", "0", "30", "1.25"}
	sumIn := decimal.Zero
	for i, in := range inflows {
		f.treasury.pos = uint64(100 + i)
		f.treasury.native = d("0.02").Add(d(in).Div(d("150")))
		f.converter.out = d(in)

		rep, err := o.Run(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if !d(in).IsZero() && !rep.Converted.Equal(d(in)) {
			t.Fatalf("cycle %d: expected %s converted, got %s", i, in, rep.Converted)
		}
		sumIn = sumIn.Add(rep.Converted)

		if rep.RouteSignature != "" {
			if !f.store.state.CarriedSettlementBalance.IsZero() {
				t.Errorf("cycle %d: carry not reset after routing", i)
			}
		} else if !f.store.state.CarriedSettlementBalance.Equal(rep.Total) {
			t.Errorf("cycle %d: carry %s != total %s", i, f.store.state.CarriedSettlementBalance, rep.Total)
		}
	}

	routed := decimal.Zero
	for _, tr := range f.router.transfers {
		routed = routed.Add(tr.amount)
	}
	if got := routed.Add(f.store.state.CarriedSettlementBalance); !got.Equal(sumIn) {
		t.Errorf("expected routed+carry %s, got %s", sumIn, got)
	}
	if len(f.router.transfers) != 2 {
		t.Errorf("expected two transfers, got %d", len(f.router.transfers))
	}
	if f.store.state.LastProcessedPosition != uint64(100+len(inflows)-1) {
		t.Errorf("unexpected position %d", f.store.state.LastProcessedPosition)
	}
}

func TestRun_PositionNeverDecreases(t *testing.T) {
	f := newFixture()
	f.store.state.LastProcessedPosition = 5000
	f.treasury.pos = 4000

	if _, err := f.orchestrator().Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.store.state.LastProcessedPosition != 5000 {
		t.Errorf("expected position to stay 5000, got %d", f.store.state.LastProcessedPosition)
	}
}
