// Package chain holds the Solana side of the cycle: treasury reads, the
// Jupiter SOL->USDC conversion and the USDC transfer to the venue deposit address.
package chain

import (
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

const (
	// WrappedSOLMint is the mint Jupiter uses for native SOL.
	WrappedSOLMint = "So11111111111111111111111111111111111111112"

	solDecimals  = 9
	usdcDecimals = 6
)

// ParseCommitment maps a config string to an RPC commitment, defaulting to confirmed.
func ParseCommitment(s string) rpc.CommitmentType {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// ParsePublicKey validates a base58 account address.
func ParsePublicKey(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return pk, nil
}

// fromBaseUnits converts an integer token amount to a decimal in whole units.
func fromBaseUnits(amount uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals)
}

// toBaseUnits truncates a whole-unit amount to integer base units.
func toBaseUnits(amount decimal.Decimal, decimals int32) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", amount)
	}
	units := amount.Shift(decimals).Truncate(0)
	if !units.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s out of range", amount)
	}
	return units.BigInt().Uint64(), nil
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
