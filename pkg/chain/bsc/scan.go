package bsc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	"github.com/pablex-exchange/custody-daemon/pkg/chain"
	"github.com/pablex-exchange/custody-daemon/pkg/circuitbreaker"
)

const scanRequestTimeout = 10 * time.Second

// scanClient lists account transfers through an etherscan compatible API
// (api.etherscan.io/v2 with chainid for BSC). Requests are paced with a rate
// limiter and shielded by a circuit breaker so that a rate limited provider
// degrades into typed transient errors instead of a request storm.
type scanClient struct {
	apiURL  string
	apiKey  string
	chainID int64
	httpCli *http.Client
	limiter ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newScanClient(
	apiURL, apiKey string, chainID int64, requestsPerSecond int,
) *scanClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 4
	}
	return &scanClient{
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		apiKey:  apiKey,
		chainID: chainID,
		httpCli: &http.Client{Timeout: scanRequestTimeout},
		limiter: ratelimit.New(requestsPerSecond),
		breaker: circuitbreaker.NewCircuitBreaker("bsc-scan"),
	}
}

// listIncomingTransfers returns transfers received by the address since the
// given block, ascending by block number. Native coin transfers come from the
// txlist action, token transfers from tokentx filtered by contract.
func (c *scanClient) listIncomingTransfers(
	ctx context.Context, address string, asset Asset, sinceBlock uint64,
) ([]chain.TransferEvent, error) {
	params := url.Values{}
	params.Set("chainid", strconv.FormatInt(c.chainID, 10))
	params.Set("module", "account")
	params.Set("address", address)
	params.Set("startblock", strconv.FormatUint(sinceBlock, 10))
	params.Set("endblock", "latest")
	params.Set("sort", "asc")
	params.Set("apikey", c.apiKey)
	if asset.IsNative() {
		params.Set("action", "txlist")
	} else {
		params.Set("action", "tokentx")
		params.Set("contractaddress", asset.Contract)
	}

	res, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	events := make([]chain.TransferEvent, 0, len(res.Result))
	for _, tx := range res.Result {
		if !strings.EqualFold(tx.To, address) {
			continue
		}
		value, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok || value.Sign() <= 0 {
			continue
		}
		blockNumber, err := strconv.ParseUint(tx.BlockNumber, 10, 64)
		if err != nil {
			continue
		}
		decimals := asset.Decimals
		if len(tx.TokenDecimal) > 0 {
			if d, err := strconv.ParseInt(tx.TokenDecimal, 10, 32); err == nil {
				decimals = int32(d)
			}
		}
		events = append(events, chain.TransferEvent{
			TxHash:      tx.Hash,
			From:        tx.From,
			To:          tx.To,
			Amount:      Asset{Decimals: decimals}.fromBaseUnit(value),
			BlockNumber: blockNumber,
		})
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].BlockNumber < events[j].BlockNumber
	})
	return events, nil
}

func (c *scanClient) doRequest(
	ctx context.Context, params url.Values,
) (*scanResponse, error) {
	c.limiter.Take()

	iRes, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet,
			fmt.Sprintf("%s?%s", c.apiURL, params.Encode()), nil,
		)
		if err != nil {
			return nil, err
		}
		httpRes, err := c.httpCli.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
		}
		defer httpRes.Body.Close()

		if httpRes.StatusCode == http.StatusTooManyRequests ||
			httpRes.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf(
				"%w: scan api returned status %d",
				chain.ErrProviderUnavailable, httpRes.StatusCode,
			)
		}
		body, err := io.ReadAll(httpRes.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
		}

		res := &scanResponse{}
		if err := json.Unmarshal(body, res); err != nil {
			return nil, fmt.Errorf("invalid scan api response: %s", err)
		}
		// the scan api signals throttling with status "0" and a NOTOK message
		// while still responding 200.
		if res.Status != "1" && strings.Contains(strings.ToUpper(res.Message), "NOTOK") {
			return nil, fmt.Errorf(
				"%w: %s", chain.ErrProviderUnavailable, res.Message,
			)
		}
		return res, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: %s", chain.ErrProviderUnavailable, err)
		}
		return nil, err
	}
	return iRes.(*scanResponse), nil
}
