// Package cycle runs one harvest -> convert -> route -> trade pass and
// commits its carry-forward state.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"TreasuryCycler/internal/model"
	"TreasuryCycler/internal/strategy"
	"TreasuryCycler/internal/venue"
)

// Stage names reported on failure.
const (
	StageTreasury = "treasury"
	StageConvert  = "convert"
	StageRoute    = "route"
	StageOrder    = "order"
	StageSave     = "save"
)

// Treasury reads the wallet being harvested.
type Treasury interface {
	CurrentPosition(ctx context.Context) (uint64, error)
	NativeBalance(ctx context.Context) (decimal.Decimal, error)
	SettlementBalance(ctx context.Context) (decimal.Decimal, error)
}

// Converter swaps native currency into settlement currency.
type Converter interface {
	Quote(ctx context.Context, amount decimal.Decimal) (*model.SwapQuote, error)
	ExecuteSwap(ctx context.Context, quote *model.SwapQuote) (decimal.Decimal, error)
}

// Router sends settlement currency to a destination address.
type Router interface {
	Transfer(ctx context.Context, destination string, amount decimal.Decimal) (string, error)
}

// StateStore persists the carry-forward record.
type StateStore interface {
	Load() model.CycleState
	Save(model.CycleState) error
}

// Settings are the fixed parameters of every cycle.
type Settings struct {
	Symbol             string
	Notional           decimal.Decimal
	Leverage           int
	Subaccount         string
	FeeReserve         decimal.Decimal
	RoutingThreshold   decimal.Decimal
	RoutingDestination string
	Lookback           int
	CallTimeout        time.Duration
}

// StageError is returned when a cycle aborts before committing state.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator wires the collaborators of a cycle together.
type Orchestrator struct {
	treasury  Treasury
	converter Converter
	router    Router
	venue     venue.TradingVenue
	store     StateStore
	settings  Settings
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// New creates an orchestrator.
func New(t Treasury, c Converter, r Router, v venue.TradingVenue, s StateStore, settings Settings, log zerolog.Logger) *Orchestrator {
	if settings.Lookback <= 0 {
		settings.Lookback = 300
	}
	if settings.CallTimeout <= 0 {
		settings.CallTimeout = time.Minute
	}
	return &Orchestrator{
		treasury:  t,
		converter: c,
		router:    r,
		venue:     v,
		store:     s,
		settings:  settings,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Run executes one cycle. The report is always returned, filled as far as the
// cycle got. State is saved only when every step succeeded.
func (o *Orchestrator) Run(ctx context.Context) (*model.CycleReport, error) {
	rep := &model.CycleReport{StartedAt: o.now()}
	err := o.run(ctx, rep)
	rep.FinishedAt = o.now()
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			rep.FailedStage = se.Stage
		}
		rep.Err = err.Error()
	}
	return rep, err
}

func (o *Orchestrator) run(ctx context.Context, rep *model.CycleReport) error {
	st := o.store.Load()
	rep.CarriedIn = st.CarriedSettlementBalance

	snap, err := o.snapshot(ctx)
	if err != nil {
		return &StageError{Stage: StageTreasury, Err: err}
	}
	rep.Snapshot = snap

	converted, err := o.convert(ctx, snap.NativeBalance)
	if err != nil {
		return &StageError{Stage: StageConvert, Err: err}
	}
	rep.Converted = converted

	total := snap.SettlementBalance.Add(converted).Add(st.CarriedSettlementBalance)
	rep.Total = total
	if st.CarriedSettlementBalance.IsPositive() && snap.SettlementBalance.IsPositive() {
		o.log.Warn().
			Str("carried", st.CarriedSettlementBalance.String()).
			Str("on_chain", snap.SettlementBalance.String()).
			Msg("carried balance and on-chain balance both positive, total may count funds twice")
	}

	dest := o.settings.RoutingDestination
	if dest != "" && total.GreaterThanOrEqual(o.settings.RoutingThreshold) && total.IsPositive() {
		callCtx, cancel := context.WithTimeout(ctx, o.settings.CallTimeout)
		sig, err := o.router.Transfer(callCtx, dest, total)
		cancel()
		if err != nil {
			return &StageError{Stage: StageRoute, Err: err}
		}
		rep.Routed = total
		rep.RouteSignature = sig
		st.CarriedSettlementBalance = decimal.Zero
		o.log.Info().Str("amount", total.String()).Str("signature", sig).Msg("routed settlement balance")
	} else {
		st.CarriedSettlementBalance = total
	}
	rep.CarriedOut = st.CarriedSettlementBalance

	if err := o.trade(ctx, rep); err != nil {
		return &StageError{Stage: StageOrder, Err: err}
	}

	if snap.CurrentPosition > st.LastProcessedPosition {
		st.LastProcessedPosition = snap.CurrentPosition
	}
	if err := o.store.Save(st); err != nil {
		return &StageError{Stage: StageSave, Err: err}
	}
	return nil
}

func (o *Orchestrator) snapshot(ctx context.Context) (model.RewardSnapshot, error) {
	var snap model.RewardSnapshot
	callCtx, cancel := context.WithTimeout(ctx, o.settings.CallTimeout)
	defer cancel()

	pos, err := o.treasury.CurrentPosition(callCtx)
	if err != nil {
		return snap, err
	}
	native, err := o.treasury.NativeBalance(callCtx)
	if err != nil {
		return snap, err
	}
	settlement, err := o.treasury.SettlementBalance(callCtx)
	if err != nil {
		return snap, err
	}
	return model.RewardSnapshot{CurrentPosition: pos, NativeBalance: native, SettlementBalance: settlement}, nil
}

// convert swaps everything above the fee reserve. Quote problems mean
// nothing is converted this cycle; a failed swap is an error.
func (o *Orchestrator) convert(ctx context.Context, native decimal.Decimal) (decimal.Decimal, error) {
	if !native.GreaterThan(o.settings.FeeReserve) {
		return decimal.Zero, nil
	}
	amount := native.Sub(o.settings.FeeReserve)

	callCtx, cancel := context.WithTimeout(ctx, o.settings.CallTimeout)
	quote, err := o.converter.Quote(callCtx, amount)
	cancel()
	if err != nil {
		o.log.Warn().Err(err).Str("amount", amount.String()).Msg("conversion quote failed, skipping conversion")
		return decimal.Zero, nil
	}
	if quote == nil {
		o.log.Warn().Str("amount", amount.String()).Msg("no conversion route, skipping conversion")
		return decimal.Zero, nil
	}

	callCtx, cancel = context.WithTimeout(ctx, o.settings.CallTimeout)
	defer cancel()
	received, err := o.converter.ExecuteSwap(callCtx, quote)
	if err != nil {
		return decimal.Zero, err
	}
	o.log.Info().Str("in", amount.String()).Str("out", received.String()).Msg("converted native balance")
	return received, nil
}

func (o *Orchestrator) trade(ctx context.Context, rep *model.CycleReport) error {
	callCtx, cancel := context.WithTimeout(ctx, o.settings.CallTimeout)
	closes := o.venue.FetchRecentCloses(callCtx, o.settings.Symbol, o.settings.Lookback)
	cancel()
	rep.Closes = len(closes)

	sig, ind := strategy.EvaluateWithIndicators(closes)
	rep.Signal = sig
	o.log.Debug().
		Int("samples", ind.Samples).
		Float64("rsi", ind.RSI).
		Float64("ema_fast", ind.EMAFast).
		Float64("ema_slow", ind.EMASlow).
		Str("signal", string(sig)).
		Msg("signal evaluated")

	side, ok := strategy.SideFor(sig)
	if !ok {
		return nil
	}
	rep.OrderSide = side
	intent := model.OrderIntent{
		Symbol:        o.settings.Symbol,
		Side:          side,
		Leverage:      o.settings.Leverage,
		Notional:      o.settings.Notional,
		Subaccount:    o.settings.Subaccount,
		ClientOrderID: o.newID(),
	}

	callCtx, cancel = context.WithTimeout(ctx, o.settings.CallTimeout)
	defer cancel()
	res, err := o.venue.PlaceOrder(callCtx, intent)
	if err != nil {
		return err
	}
	rep.Order = res
	return nil
}
