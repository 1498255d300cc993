package chain

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// Treasury reads the developer wallet: current slot, SOL balance and USDC balance.
type Treasury struct {
	RPC        *rpc.Client
	Owner      solana.PublicKey
	USDCMint   solana.PublicKey
	Commitment rpc.CommitmentType
}

// NewTreasury creates a treasury reader for owner.
func NewTreasury(client *rpc.Client, owner, usdcMint solana.PublicKey, commitment rpc.CommitmentType) *Treasury {
	return &Treasury{RPC: client, Owner: owner, USDCMint: usdcMint, Commitment: commitment}
}

// CurrentPosition returns the current slot.
func (t *Treasury) CurrentPosition(ctx context.Context) (uint64, error) {
	slot, err := t.RPC.GetSlot(ctx, t.Commitment)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

// NativeBalance returns the wallet SOL balance.
func (t *Treasury) NativeBalance(ctx context.Context) (decimal.Decimal, error) {
	out, err := t.RPC.GetBalance(ctx, t.Owner, t.Commitment)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return fromBaseUnits(out.Value, solDecimals), nil
}

// SettlementBalance returns the USDC held in the owner's associated token
// account. A missing account is a zero balance.
func (t *Treasury) SettlementBalance(ctx context.Context) (decimal.Decimal, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(t.Owner, t.USDCMint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("derive token account: %w", err)
	}
	out, err := t.RPC.GetTokenAccountBalance(ctx, ata, t.Commitment)
	if err != nil {
		exists, existsErr := accountExists(ctx, t.RPC, ata, t.Commitment)
		if existsErr == nil && !exists {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get token balance: %w", err)
	}
	if out.Value == nil {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(out.Value.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token amount %q: %w", out.Value.Amount, err)
	}
	return amount.Shift(-int32(out.Value.Decimals)), nil
}

func accountExists(ctx context.Context, client *rpc.Client, account solana.PublicKey, commitment rpc.CommitmentType) (bool, error) {
	_, err := client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{Commitment: commitment})
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
