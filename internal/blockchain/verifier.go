// Package blockchain performs best-effort reads against third-party chain
// explorers to sanity-check submitted deposits. Results are advisory; they
// never move transaction state by themselves.
package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signalmarket/internal/apperr"
)

// usdtDecimals: USDT carries 6 decimals on both Tron and Ethereum.
var usdtUnit = decimal.New(1, 6)

// amountTolerance absorbs small explorer rounding differences.
var amountTolerance = decimal.RequireFromString("0.1")

type Result struct {
	Valid  bool            `json:"valid"`
	Reason string          `json:"reason,omitempty"`
	Amount decimal.Decimal `json:"amount,omitempty"`
	From   string          `json:"from,omitempty"`
}

type Verifier struct {
	HTTP   *http.Client
	Logger *zap.Logger

	TronScanBaseURL  string
	EtherscanBaseURL string
	EtherscanAPIKey  string
}

func (v *Verifier) httpClient() *http.Client {
	if v.HTTP != nil {
		return v.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}

type tronTransferInfo struct {
	Symbol      string `json:"symbol"`
	ToAddress   string `json:"to_address"`
	FromAddress string `json:"from_address"`
	AmountStr   string `json:"amount_str"`
}

type tronTxResponse struct {
	ContractRet       string            `json:"contractRet"`
	TokenTransferInfo *tronTransferInfo `json:"tokenTransferInfo"`
}

// VerifyTRC20 checks a USDT transfer on Tron via TronScan.
func (v *Verifier) VerifyTRC20(ctx context.Context, txHash string, expectedAmount decimal.Decimal, expectedAddress string) (Result, error) {
	base := strings.TrimRight(v.TronScanBaseURL, "/")
	if base == "" {
		base = "https://apilist.tronscan.org/api"
	}
	endpoint := base + "/transaction-info?hash=" + url.QueryEscape(txHash)

	var payload tronTxResponse
	if err := v.getJSON(ctx, endpoint, &payload); err != nil {
		return Result{}, apperr.UpstreamUnavailable("Error connecting to TronScan API", err)
	}

	if payload.ContractRet == "" {
		return Result{Reason: "Transaction not found on TronScan"}, nil
	}
	if payload.ContractRet != "SUCCESS" {
		return Result{Reason: "Transaction failed on-chain"}, nil
	}
	transfer := payload.TokenTransferInfo
	if transfer == nil || transfer.Symbol != "USDT" {
		return Result{Reason: "Not a USDT transfer"}, nil
	}
	if transfer.ToAddress != expectedAddress {
		return Result{Reason: fmt.Sprintf("Recipient mismatch. Expected %s, got %s", expectedAddress, transfer.ToAddress)}, nil
	}

	raw, err := decimal.NewFromString(transfer.AmountStr)
	if err != nil {
		return Result{Reason: "Unreadable transfer amount"}, nil
	}
	actual := raw.Div(usdtUnit)
	if actual.Sub(expectedAmount).Abs().GreaterThan(amountTolerance) {
		return Result{Reason: fmt.Sprintf("Amount mismatch. Expected %s, got %s", expectedAmount, actual)}, nil
	}

	return Result{Valid: true, Amount: actual, From: transfer.FromAddress}, nil
}

type etherscanTokenTx struct {
	To    string `json:"to"`
	From  string `json:"from"`
	Value string `json:"value"`
}

type etherscanResponse struct {
	Status string             `json:"status"`
	Result []etherscanTokenTx `json:"result"`
}

// usdtContractERC20 is the USDT token contract on Ethereum mainnet.
const usdtContractERC20 = "0xdac17f958d2ee523a2206206994597c13d831ec7"

// VerifyERC20 checks a USDT transfer on Ethereum via Etherscan.
func (v *Verifier) VerifyERC20(ctx context.Context, txHash string, expectedAmount decimal.Decimal, expectedAddress string) (Result, error) {
	if strings.TrimSpace(v.EtherscanAPIKey) == "" {
		return Result{Reason: "Etherscan API Key not configured"}, nil
	}
	base := strings.TrimRight(v.EtherscanBaseURL, "/")
	if base == "" {
		base = "https://api.etherscan.io/api"
	}
	endpoint := fmt.Sprintf("%s?module=account&action=tokentx&contractaddress=%s&txhash=%s&apikey=%s",
		base, usdtContractERC20, url.QueryEscape(txHash), url.QueryEscape(v.EtherscanAPIKey))

	var payload etherscanResponse
	if err := v.getJSON(ctx, endpoint, &payload); err != nil {
		return Result{}, apperr.UpstreamUnavailable("Error connecting to Etherscan API", err)
	}

	if payload.Status != "1" || len(payload.Result) == 0 {
		return Result{Reason: "Transaction not found or invalid on Etherscan"}, nil
	}
	tx := payload.Result[0]
	if !strings.EqualFold(tx.To, expectedAddress) {
		return Result{Reason: fmt.Sprintf("Recipient mismatch. Expected %s, got %s", expectedAddress, tx.To)}, nil
	}

	raw, err := decimal.NewFromString(tx.Value)
	if err != nil {
		return Result{Reason: "Unreadable transfer amount"}, nil
	}
	actual := raw.Div(usdtUnit)
	if actual.Sub(expectedAmount).Abs().GreaterThan(amountTolerance) {
		return Result{Reason: fmt.Sprintf("Amount mismatch. Expected %s, got %s", expectedAmount, actual)}, nil
	}

	return Result{Valid: true, Amount: actual, From: tx.From}, nil
}

func (v *Verifier) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
