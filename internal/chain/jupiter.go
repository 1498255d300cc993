package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"TreasuryCycler/internal/model"
)

// JupiterClient converts SOL to USDC through the Jupiter v6 aggregator.
type JupiterClient struct {
	Base         string
	RPC          *rpc.Client
	Owner        solana.PrivateKey
	Commit       rpc.CommitmentType
	HTTP         *http.Client
	OutputMint   string
	SlippageBps  int
	PollInterval time.Duration
}

// JupiterOptions configures NewJupiterClient.
type JupiterOptions struct {
	Base        string
	OutputMint  string
	SlippageBps int
	Proxy       string
	Timeout     time.Duration
}

type quoteResponse struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

// NewJupiterClient creates a conversion client that signs with owner.
func NewJupiterClient(client *rpc.Client, owner solana.PrivateKey, commit rpc.CommitmentType, opts JupiterOptions) *JupiterClient {
	return &JupiterClient{
		Base:         strings.TrimRight(opts.Base, "/"),
		RPC:          client,
		Owner:        owner,
		Commit:       commit,
		HTTP:         newHTTPClient(opts.Proxy, opts.Timeout),
		OutputMint:   opts.OutputMint,
		SlippageBps:  opts.SlippageBps,
		PollInterval: defaultPollInterval,
	}
}

// Quote asks for a SOL->USDC route for amount SOL. A nil quote without error
// means there is nothing to convert or no route.
func (j *JupiterClient) Quote(ctx context.Context, amount decimal.Decimal) (*model.SwapQuote, error) {
	lamports, err := toBaseUnits(amount, solDecimals)
	if err != nil {
		return nil, err
	}
	if lamports == 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("inputMint", WrappedSOLMint)
	q.Set("outputMint", j.OutputMint)
	q.Set("amount", strconv.FormatUint(lamports, 10))
	q.Set("slippageBps", strconv.Itoa(j.SlippageBps))
	q.Set("onlyDirectRoutes", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.Base+"/v6/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := j.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter quote status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out quoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	outUnits, err := strconv.ParseUint(out.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quote outAmount %q: %w", out.OutAmount, err)
	}
	if outUnits == 0 {
		return nil, nil
	}
	inUnits, err := strconv.ParseUint(out.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quote inAmount %q: %w", out.InAmount, err)
	}
	return &model.SwapQuote{
		InAmount:  fromBaseUnits(inUnits, solDecimals),
		OutAmount: fromBaseUnits(outUnits, usdcDecimals),
		Raw:       json.RawMessage(raw),
	}, nil
}

// ExecuteSwap builds the swap via Jupiter, signs it locally, sends it and
// waits for confirmation. It returns the quoted USDC amount.
func (j *JupiterClient) ExecuteSwap(ctx context.Context, quote *model.SwapQuote) (decimal.Decimal, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return decimal.Zero, fmt.Errorf("execute swap: empty quote")
	}
	tx, err := j.buildSwap(ctx, quote.Raw)
	if err != nil {
		return decimal.Zero, err
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(j.Owner.PublicKey()) {
			return &j.Owner
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sign swap: %w", err)
	}

	sig, err := j.RPC.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: j.Commit,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("send swap: %w", err)
	}
	if err := waitConfirmed(ctx, j.RPC, sig, j.PollInterval); err != nil {
		return decimal.Zero, err
	}
	return quote.OutAmount, nil
}

func (j *JupiterClient) buildSwap(ctx context.Context, rawQuote json.RawMessage) (*solana.Transaction, error) {
	payload := map[string]any{
		"userPublicKey":             j.Owner.PublicKey().String(),
		"wrapAndUnwrapSol":          true,
		"asLegacyTransaction":       false,
		"useTokenLedger":            false,
		"prioritizationFeeLamports": 0,
		"quoteResponse":             rawQuote,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.Base+"/v6/swap", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := j.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter swap: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("jupiter swap status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var sr struct {
		SwapTransaction string `json:"swapTransaction"` // base64, unsigned
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal tx: %w", err)
	}
	return tx, nil
}
