package ingest

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/rpcpool"
)

// EVMCallerFetcher batches eth_call reads through Multicall3 (spec.md
// §4.6.5 "Target is a contract address, Selector a function signature,
// Params its ABI-encoded arguments... fields are batched into a
// multicall to a well-known multicall contract address"). Chomp does
// not depend on an ABI-encoding library from the pack, so abi.go
// hand-rolls the narrow aggregate3 encoding this needs.
type EVMCallerFetcher struct {
	Pool   *rpcpool.Pool
	Client *http.Client
}

// NewEVMCallerFetcher builds a fetcher against pool.
func NewEVMCallerFetcher(pool *rpcpool.Pool) *EVMCallerFetcher {
	return &EVMCallerFetcher{Pool: pool, Client: &http.Client{Timeout: 10 * time.Second}}
}

// multicallAddressFor returns the Multicall3 deployment address for
// chainID. Multicall3 sits at the same address on every chain it has
// been deployed to, so this returns the canonical address for every
// chain; there are no per-chain overrides.
func multicallAddressFor(chainID string) string {
	return multicall3Address
}

// splitChainTarget parses a "<chain_id>:<address>" target (spec.md
// §4.6.5). A target with no colon is treated as running on an
// implicit, unnamed chain sharing one multicall batch.
func splitChainTarget(target string) (chainID, address string) {
	if i := strings.IndexByte(target, ':'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return "", target
}

// Fetch groups fields by chain id and issues one aggregate3 multicall
// per chain per epoch. A field whose sub-call fails, or whose group's
// RPC call fails outright, is left nil (spec.md §4.6.5 "Errors in
// individual sub-calls yield null for that field without failing the
// batch"); the epoch only fails if every chain's batch failed.
func (f *EVMCallerFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	groups := map[string][]*model.Field{}
	for _, field := range ing.Fields {
		if field.Target == "" || field.Readonly {
			continue
		}
		chainID, _ := splitChainTarget(field.Target)
		groups[chainID] = append(groups[chainID], field)
	}
	if len(groups) == 0 {
		return nil
	}

	ok := 0
	var lastErr error
	for chainID, fields := range groups {
		if err := f.fetchChain(ctx, chainID, fields); err != nil {
			lastErr = err
			continue
		}
		ok++
	}
	if ok == 0 {
		return fmt.Errorf("evm_caller: all chains failed: %w", lastErr)
	}
	return nil
}

// fetchChain batches fields into one aggregate3 call against chainID's
// multicall contract and fans results back out by field.
func (f *EVMCallerFetcher) fetchChain(ctx context.Context, chainID string, fields []*model.Field) error {
	calls := make([]call3, len(fields))
	for i, field := range fields {
		_, address := splitChainTarget(field.Target)
		data, err := hex.DecodeString(strings.TrimPrefix(field.Selector+field.Params, "0x"))
		if err != nil {
			return fmt.Errorf("evm_caller: malformed calldata for %s: %w", field.Target, err)
		}
		calls[i] = call3{Target: address, AllowFailure: true, CallData: data}
	}

	calldata, err := encodeAggregate3(calls)
	if err != nil {
		return fmt.Errorf("evm_caller: encode aggregate3: %w", err)
	}

	raw, err := f.call(ctx, multicallAddressFor(chainID), calldata)
	if err != nil {
		return fmt.Errorf("evm_caller: chain %q multicall: %w", chainID, err)
	}

	results, err := decodeAggregate3Result(raw)
	if err != nil {
		return fmt.Errorf("evm_caller: chain %q decode: %w", chainID, err)
	}

	for i, field := range fields {
		if i >= len(results) || !results[i].Success {
			continue // left nil: reported missing by the caller
		}
		field.Value = "0x" + hex.EncodeToString(results[i].ReturnData)
	}
	return nil
}

func (f *EVMCallerFetcher) call(ctx context.Context, to, data string) (string, error) {
	reqBody, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_call",
		"params": []any{
			map[string]string{"to": to, "data": data},
			"latest",
		},
	})
	if err != nil {
		return "", err
	}

	var result string
	err = f.Pool.ExecuteWithFailover(ctx, 2, func(url string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var decoded struct {
			Result string `json:"result"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return err
		}
		if decoded.Error != nil {
			return fmt.Errorf("eth_call: %s", decoded.Error.Message)
		}
		result = decoded.Result
		return nil
	})
	return result, err
}
