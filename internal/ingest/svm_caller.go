package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btr-supply/chomp/internal/model"
	"github.com/btr-supply/chomp/internal/rpcpool"
)

// svmMaxAccountsPerBatch caps each getMultipleAccounts call (spec.md
// §4.6.6 "Up to 100 accounts are fetched per getMultipleAccounts
// batch").
const svmMaxAccountsPerBatch = 100

// SVMCallerFetcher batches getMultipleAccounts reads against a pooled
// set of Solana endpoints (spec.md §4.6.6 "Target is an account
// address, selector a comma-separated list of start:end byte ranges
// into the base64-decoded account data").
type SVMCallerFetcher struct {
	Pool   *rpcpool.Pool
	Client *http.Client
}

// NewSVMCallerFetcher builds a fetcher against pool.
func NewSVMCallerFetcher(pool *rpcpool.Pool) *SVMCallerFetcher {
	return &SVMCallerFetcher{Pool: pool, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Fetch groups fields by account address and fetches each batch of up
// to svmMaxAccountsPerBatch accounts in one getMultipleAccounts call. A
// batch's RPC failure leaves every field it covers nil without
// aborting fields served by other batches; a missing account (a nil
// entry in the response) likewise leaves only its own fields nil.
func (f *SVMCallerFetcher) Fetch(ctx context.Context, ing *model.Ingester) error {
	fieldsByTarget := map[string][]*model.Field{}
	var targets []string
	for _, field := range ing.Fields {
		if field.Target == "" || field.Readonly {
			continue
		}
		if _, seen := fieldsByTarget[field.Target]; !seen {
			targets = append(targets, field.Target)
		}
		fieldsByTarget[field.Target] = append(fieldsByTarget[field.Target], field)
	}
	if len(targets) == 0 {
		return nil
	}

	ok := 0
	var lastErr error
	for start := 0; start < len(targets); start += svmMaxAccountsPerBatch {
		end := start + svmMaxAccountsPerBatch
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]

		accounts, err := f.getMultipleAccounts(ctx, batch)
		if err != nil {
			lastErr = fmt.Errorf("svm_caller: getMultipleAccounts: %w", err)
			continue
		}
		ok++

		for i, target := range batch {
			data := accounts[i]
			for _, field := range fieldsByTarget[target] {
				if data == nil {
					continue // left nil: account missing
				}
				value, err := extractByteRanges(data, field.Selector)
				if err != nil {
					continue // left nil: malformed selector
				}
				field.Value = value
			}
		}
	}
	if ok == 0 {
		return fmt.Errorf("svm_caller: all batches failed: %w", lastErr)
	}
	return nil
}

// getMultipleAccounts fetches pubkeys' base64-encoded account data in
// one RPC call, returning nil entries for missing accounts at their
// corresponding index.
func (f *SVMCallerFetcher) getMultipleAccounts(ctx context.Context, pubkeys []string) ([][]byte, error) {
	reqBody, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "getMultipleAccounts",
		"params":  []any{pubkeys, map[string]string{"encoding": "base64"}},
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Result struct {
			Value []*struct {
				Data []string `json:"data"`
			} `json:"value"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

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
		return json.NewDecoder(resp.Body).Decode(&decoded)
	})
	if err != nil {
		return nil, err
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("getMultipleAccounts: %s", decoded.Error.Message)
	}

	out := make([][]byte, len(pubkeys))
	for i, entry := range decoded.Result.Value {
		if entry == nil || len(entry.Data) == 0 {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(entry.Data[0])
		if err != nil {
			continue
		}
		out[i] = raw
	}
	return out, nil
}

// extractByteRanges selects byte ranges out of data per a comma
// separated "start:end,start:end" selector (spec.md §4.6.6), returning
// the concatenated selection hex-encoded. An empty selector returns the
// whole account's data.
func extractByteRanges(data []byte, selector string) (string, error) {
	if selector == "" {
		return "0x" + hex.EncodeToString(data), nil
	}
	var out []byte
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		bounds := strings.SplitN(part, ":", 2)
		if len(bounds) != 2 {
			return "", fmt.Errorf("svm_caller: malformed byte range %q", part)
		}
		start, errStart := strconv.Atoi(strings.TrimSpace(bounds[0]))
		end, errEnd := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if errStart != nil || errEnd != nil || start < 0 || end < start || end > len(data) {
			return "", fmt.Errorf("svm_caller: byte range %q out of bounds for %d-byte account", part, len(data))
		}
		out = append(out, data[start:end]...)
	}
	return "0x" + hex.EncodeToString(out), nil
}
