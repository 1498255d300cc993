package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// Router moves USDC from the treasury wallet to a destination wallet,
// creating the destination token account when it does not exist yet.
type Router struct {
	RPC          *rpc.Client
	Owner        solana.PrivateKey
	Mint         solana.PublicKey
	Commit       rpc.CommitmentType
	PollInterval time.Duration
}

// NewRouter creates a USDC router signing with owner.
func NewRouter(client *rpc.Client, owner solana.PrivateKey, mint solana.PublicKey, commit rpc.CommitmentType) *Router {
	return &Router{RPC: client, Owner: owner, Mint: mint, Commit: commit, PollInterval: defaultPollInterval}
}

// Transfer sends amount USDC to destination and returns the confirmed signature.
func (r *Router) Transfer(ctx context.Context, destination string, amount decimal.Decimal) (string, error) {
	dest, err := ParsePublicKey(destination)
	if err != nil {
		return "", err
	}
	units, err := toBaseUnits(amount, usdcDecimals)
	if err != nil {
		return "", err
	}
	if units == 0 {
		return "", fmt.Errorf("transfer amount %s rounds to zero", amount)
	}

	owner := r.Owner.PublicKey()
	srcATA, _, err := solana.FindAssociatedTokenAddress(owner, r.Mint)
	if err != nil {
		return "", fmt.Errorf("derive source token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(dest, r.Mint)
	if err != nil {
		return "", fmt.Errorf("derive destination token account: %w", err)
	}

	var instructions []solana.Instruction
	exists, err := accountExists(ctx, r.RPC, destATA, r.Commit)
	if err != nil {
		return "", fmt.Errorf("check destination token account: %w", err)
	}
	if !exists {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(owner, dest, r.Mint).Build())
	}
	instructions = append(instructions, token.NewTransferCheckedInstruction(
		units, usdcDecimals, srcATA, r.Mint, destATA, owner, nil,
	).Build())

	sig, err := r.send(ctx, instructions)
	if err != nil {
		return "", err
	}
	if err := waitConfirmed(ctx, r.RPC, sig, r.PollInterval); err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (r *Router) send(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	var sig solana.Signature
	recent, err := r.RPC.GetLatestBlockhash(ctx, r.Commit)
	if err != nil {
		return sig, fmt.Errorf("latest blockhash: %w", err)
	}
	if recent == nil || recent.Value == nil {
		return sig, errors.New("latest blockhash: empty response")
	}
	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(r.Owner.PublicKey()))
	if err != nil {
		return sig, fmt.Errorf("build transfer: %w", err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(r.Owner.PublicKey()) {
			return &r.Owner
		}
		return nil
	})
	if err != nil {
		return sig, fmt.Errorf("sign transfer: %w", err)
	}
	sig, err = r.RPC.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{PreflightCommitment: r.Commit})
	if err != nil {
		return sig, fmt.Errorf("send transfer: %w", err)
	}
	return sig, nil
}
