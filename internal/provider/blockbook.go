package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quackstro/openclaw-doge/pkg/helpers"
)

// BlockbookProvider implements ChainDataProvider against a Trezor Blockbook
// instance. API docs: https://github.com/trezor/blockbook/blob/master/docs/api.md
type BlockbookProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewBlockbookProvider creates a provider for a Blockbook base URL like
// "https://doge1.trezor.io/api/v2".
func NewBlockbookProvider(baseURL string, timeout time.Duration) *BlockbookProvider {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &BlockbookProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetUTXOs returns the unspent outputs for an address.
func (b *BlockbookProvider) GetUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var result []struct {
		TxID          string `json:"txid"`
		Vout          uint32 `json:"vout"`
		Value         string `json:"value"`
		Confirmations uint32 `json:"confirmations"`
	}

	if err := b.get(ctx, "/utxo/"+address, &result); err != nil {
		return nil, err
	}

	utxos := make([]UTXO, len(result))
	for i, u := range result {
		amount, err := strconv.ParseUint(u.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad utxo value %q", ErrProvider, u.Value)
		}
		utxos[i] = UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			AmountKoinu:   amount,
			Confirmations: u.Confirmations,
		}
	}
	return utxos, nil
}

// GetTxStatus returns confirmations and block height for a transaction.
func (b *BlockbookProvider) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	var result struct {
		Confirmations uint32 `json:"confirmations"`
		BlockHeight   int64  `json:"blockHeight"`
	}

	if err := b.get(ctx, "/tx/"+txid, &result); err != nil {
		return nil, err
	}
	return &TxStatus{
		Confirmations: result.Confirmations,
		BlockHeight:   result.BlockHeight,
	}, nil
}

// GetBlockHeight returns the current best height.
func (b *BlockbookProvider) GetBlockHeight(ctx context.Context) (int64, error) {
	var result struct {
		Blockbook struct {
			BestHeight int64 `json:"bestHeight"`
		} `json:"blockbook"`
	}

	if err := b.get(ctx, "", &result); err != nil {
		return 0, err
	}
	return result.Blockbook.BestHeight, nil
}

// EstimateFeePerKB returns the fee estimate for next-block confirmation,
// converted from the DOGE/kB decimal string Blockbook reports.
func (b *BlockbookProvider) EstimateFeePerKB(ctx context.Context) (*FeeEstimate, error) {
	var result struct {
		Result string `json:"result"`
	}

	if err := b.get(ctx, "/estimatefee/1", &result); err != nil {
		return nil, err
	}

	perKB, err := helpers.DogeToKoinu(strings.TrimSpace(result.Result))
	if err != nil {
		return nil, fmt.Errorf("%w: bad fee estimate %q", ErrProvider, result.Result)
	}
	return &FeeEstimate{PerKB: perKB}, nil
}

// get performs a GET request and decodes the JSON response.
func (b *BlockbookProvider) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", b.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return nil
}

// Ensure BlockbookProvider implements the interfaces.
var (
	_ ChainDataProvider = (*BlockbookProvider)(nil)
	_ FeeEstimator      = (*BlockbookProvider)(nil)
)
