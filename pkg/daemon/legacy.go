package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/bardlex/turtlego/pkg/errors"
	"github.com/bardlex/turtlego/pkg/transport"
)

const statusOK = "OK"

// rpcRequest is a JSON-RPC 2.0 request. Unlike btcjson.Request it allows named params,
// which every TurtleCoind method except submitblock expects.
type rpcRequest struct {
	JSONRPC btcjson.RPCVersion `json:"jsonrpc"`
	ID      int                `json:"id"`
	Method  string             `json:"method"`
	Params  any                `json:"params"`
}

type noParams struct{}

// LegacyClient is a client for TurtleCoind releases before 1.0. It holds no per-call
// state and is safe for concurrent use.
type LegacyClient struct {
	rpc *transport.Client
}

// NewLegacyClient creates a legacy client for the daemon at cfg. A zero port means
// DefaultPort.
func NewLegacyClient(cfg transport.Config, opts ...transport.Option) (*LegacyClient, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	rpc, err := transport.New(cfg, append([]transport.Option{transport.WithName("legacy_daemon")}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &LegacyClient{rpc: rpc}, nil
}

// Endpoint returns the daemon base URL
func (c *LegacyClient) Endpoint() string {
	return c.rpc.BaseURL()
}

// call performs one JSON-RPC round trip on /json_rpc. A JSON-RPC error object and a
// result whose status is not OK are both rejections.
func (c *LegacyClient) call(ctx context.Context, method string, params, out any) error {
	req := rpcRequest{JSONRPC: btcjson.RpcVersion2, ID: 1, Method: method, Params: params}

	var resp btcjson.Response
	err := c.rpc.Do(ctx, transport.Call{
		Operation: method,
		Method:    http.MethodPost,
		Path:      "/json_rpc",
		Body:      req,
		Out:       &resp,
	})
	if err != nil {
		return err
	}

	if resp.Error != nil {
		return errors.Wrap(resp.Error, errors.ErrorTypeRejected, method, resp.Error.Message).
			WithStatus(http.StatusOK, int(resp.Error.Code))
	}

	if len(resp.Result) == 0 || bytes.Equal(resp.Result, []byte("null")) {
		return errors.New(errors.ErrorTypeProtocol, method, "JSON-RPC response has neither result nor error")
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Result, &status); err == nil {
		if err := checkStatus(method, status.Status, ""); err != nil {
			return err
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProtocol, method, "malformed JSON-RPC result")
	}
	return nil
}

func (c *LegacyClient) get(ctx context.Context, operation, path string, out any) error {
	return c.rpc.Do(ctx, transport.Call{Operation: operation, Method: http.MethodGet, Path: path, Out: out})
}

func (c *LegacyClient) post(ctx context.Context, operation, path string, body, out any) error {
	return c.rpc.Do(ctx, transport.Call{Operation: operation, Method: http.MethodPost, Path: path, Body: body, Out: out})
}

// checkStatus rejects a response whose status is present and not OK. Some endpoints
// omit the field entirely.
func checkStatus(operation, status, detail string) error {
	if status == "" || status == statusOK {
		return nil
	}
	msg := status
	if detail != "" {
		msg = status + ": " + detail
	}
	return errors.New(errors.ErrorTypeRejected, operation, msg).
		WithStatus(http.StatusOK, 0).
		WithContext("status", status)
}

// Info retrieves the node summary. Version is a "major.minor.patch" string.
func (c *LegacyClient) Info(ctx context.Context) (*LegacyInfo, error) {
	var info LegacyInfo
	if err := c.get(ctx, "info", "/info", &info); err != nil {
		return nil, err
	}
	if err := checkStatus("info", info.Status, ""); err != nil {
		return nil, err
	}
	return &info, nil
}

// Height returns the local and network heights
func (c *LegacyClient) Height(ctx context.Context) (*LegacyHeight, error) {
	var h LegacyHeight
	if err := c.get(ctx, "height", "/height", &h); err != nil {
		return nil, err
	}
	if err := checkStatus("height", h.Status, ""); err != nil {
		return nil, err
	}
	return &h, nil
}

// Peers returns the peer lists
func (c *LegacyClient) Peers(ctx context.Context) (*LegacyPeers, error) {
	var p LegacyPeers
	if err := c.get(ctx, "peers", "/peers", &p); err != nil {
		return nil, err
	}
	if err := checkStatus("peers", p.Status, ""); err != nil {
		return nil, err
	}
	return &p, nil
}

// Fee returns the node operator fee
func (c *LegacyClient) Fee(ctx context.Context) (*LegacyFee, error) {
	var f LegacyFee
	if err := c.get(ctx, "fee", "/fee", &f); err != nil {
		return nil, err
	}
	if err := checkStatus("fee", f.Status, ""); err != nil {
		return nil, err
	}
	return &f, nil
}

// BlockCount returns the number of blocks in the local chain (getblockcount)
func (c *LegacyClient) BlockCount(ctx context.Context) (uint64, error) {
	var resp struct {
		Count uint64 `json:"count"`
	}
	if err := c.call(ctx, "getblockcount", noParams{}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Block returns a block with its transactions (f_block_json)
func (c *LegacyClient) Block(ctx context.Context, hash string) (*LegacyBlock, error) {
	if err := ValidateHash("f_block_json", hash); err != nil {
		return nil, err
	}

	var resp struct {
		Block LegacyBlock `json:"block"`
	}
	params := struct {
		Hash string `json:"hash"`
	}{hash}
	if err := c.call(ctx, "f_block_json", params, &resp); err != nil {
		return nil, err
	}
	return &resp.Block, nil
}

// BlockHeaderByHash returns a block header (getblockheaderbyhash)
func (c *LegacyClient) BlockHeaderByHash(ctx context.Context, hash string) (*LegacyBlockHeader, error) {
	if err := ValidateHash("getblockheaderbyhash", hash); err != nil {
		return nil, err
	}

	params := struct {
		Hash string `json:"hash"`
	}{hash}
	return c.blockHeader(ctx, "getblockheaderbyhash", params)
}

// BlockHeaderByHeight returns a block header (getblockheaderbyheight)
func (c *LegacyClient) BlockHeaderByHeight(ctx context.Context, height uint64) (*LegacyBlockHeader, error) {
	params := struct {
		Height uint64 `json:"height"`
	}{height}
	return c.blockHeader(ctx, "getblockheaderbyheight", params)
}

// LastBlockHeader returns the header of the chain tip (getlastblockheader)
func (c *LegacyClient) LastBlockHeader(ctx context.Context) (*LegacyBlockHeader, error) {
	return c.blockHeader(ctx, "getlastblockheader", noParams{})
}

func (c *LegacyClient) blockHeader(ctx context.Context, method string, params any) (*LegacyBlockHeader, error) {
	var resp struct {
		BlockHeader LegacyBlockHeader `json:"block_header"`
	}
	if err := c.call(ctx, method, params, &resp); err != nil {
		return nil, err
	}
	return &resp.BlockHeader, nil
}

// BlockShortHeaders returns up to 31 short headers ending at height (f_blocks_list_json)
func (c *LegacyClient) BlockShortHeaders(ctx context.Context, height uint64) ([]LegacyShortHeader, error) {
	var resp struct {
		Blocks []LegacyShortHeader `json:"blocks"`
	}
	params := struct {
		Height uint64 `json:"height"`
	}{height}
	if err := c.call(ctx, "f_blocks_list_json", params, &resp); err != nil {
		return nil, err
	}
	return resp.Blocks, nil
}

// BlockTemplate requests a block template paying to address (getblocktemplate)
func (c *LegacyClient) BlockTemplate(ctx context.Context, address string, reserveSize int) (*LegacyBlockTemplate, error) {
	if reserveSize < 0 || reserveSize > 255 {
		return nil, errors.New(errors.ErrorTypeValidation, "getblocktemplate", "reserve size must be between 0 and 255").
			WithContext("reserve_size", reserveSize)
	}

	params := struct {
		ReserveSize   int    `json:"reserve_size"`
		WalletAddress string `json:"wallet_address"`
	}{reserveSize, address}

	var t LegacyBlockTemplate
	if err := c.call(ctx, "getblocktemplate", params, &t); err != nil {
		return nil, err
	}
	if err := checkTemplate(&BlockTemplate{Blob: t.Blob, Difficulty: t.Difficulty}); err != nil {
		return nil, err
	}
	return &t, nil
}

// SubmitBlock submits a mined block blob (submitblock). This is the one method that
// takes positional params.
func (c *LegacyClient) SubmitBlock(ctx context.Context, blob string) error {
	if err := ValidateBlob("submitblock", blob); err != nil {
		return err
	}
	return c.call(ctx, "submitblock", []string{blob}, nil)
}

// Transaction returns a transaction with its block (f_transaction_json)
func (c *LegacyClient) Transaction(ctx context.Context, hash string) (*LegacyTransaction, error) {
	if err := ValidateHash("f_transaction_json", hash); err != nil {
		return nil, err
	}

	params := struct {
		Hash string `json:"hash"`
	}{hash}

	var tx LegacyTransaction
	if err := c.call(ctx, "f_transaction_json", params, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// TransactionPool returns summaries of the pooled transactions (f_on_transactions_pool_json)
func (c *LegacyClient) TransactionPool(ctx context.Context) ([]LegacyTransactionSummary, error) {
	var resp struct {
		Transactions []LegacyTransactionSummary `json:"transactions"`
	}
	if err := c.call(ctx, "f_on_transactions_pool_json", noParams{}, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

// BlocksDetailed returns up to count detailed blocks starting after the newest known
// hash or at timestamp
func (c *LegacyClient) BlocksDetailed(ctx context.Context, timestamp uint64, knownHashes []string, count uint64) (*LegacyBlocksDetailed, error) {
	if err := ValidateHashes("queryblocksdetailed", knownHashes); err != nil {
		return nil, err
	}
	if count == 0 {
		count = DefaultSyncCount
	}

	req := struct {
		BlockIDs   []string `json:"blockIds"`
		Timestamp  uint64   `json:"timestamp"`
		BlockCount uint64   `json:"blockCount"`
	}{nonNil(knownHashes), timestamp, count}

	var res LegacyBlocksDetailed
	if err := c.post(ctx, "queryblocksdetailed", "/queryblocksdetailed", req, &res); err != nil {
		return nil, err
	}
	if err := checkStatus("queryblocksdetailed", res.Status, ""); err != nil {
		return nil, err
	}
	return &res, nil
}

// BlocksLite returns raw blocks with short transaction data
func (c *LegacyClient) BlocksLite(ctx context.Context, knownHashes []string, timestamp uint64) (*LegacyBlocksLite, error) {
	if err := ValidateHashes("queryblockslite", knownHashes); err != nil {
		return nil, err
	}

	req := struct {
		BlockIDs  []string `json:"blockIds"`
		Timestamp uint64   `json:"timestamp"`
	}{nonNil(knownHashes), timestamp}

	var res LegacyBlocksLite
	if err := c.post(ctx, "queryblockslite", "/queryblockslite", req, &res); err != nil {
		return nil, err
	}
	if err := checkStatus("queryblockslite", res.Status, ""); err != nil {
		return nil, err
	}
	return &res, nil
}

// GlobalIndexes returns the global output indexes of a transaction
func (c *LegacyClient) GlobalIndexes(ctx context.Context, txHash string) ([]uint64, error) {
	if err := ValidateHash("get_o_indexes", txHash); err != nil {
		return nil, err
	}

	req := struct {
		TxID string `json:"txid"`
	}{txHash}

	var res struct {
		Indexes []uint64 `json:"o_indexes"`
		Status  string   `json:"status"`
	}
	if err := c.post(ctx, "get_o_indexes", "/get_o_indexes.json", req, &res); err != nil {
		return nil, err
	}
	if err := checkStatus("get_o_indexes", res.Status, ""); err != nil {
		return nil, err
	}
	return res.Indexes, nil
}

// GlobalIndexesForRange returns the global output indexes of every transaction in
// blocks start up to but not including end
func (c *LegacyClient) GlobalIndexesForRange(ctx context.Context, start, end uint64) ([]LegacyIndexRange, error) {
	if end < start {
		return nil, errors.New(errors.ErrorTypeValidation, "get_global_indexes_for_range", "end height before start height").
			WithContext("start", start).
			WithContext("end", end)
	}

	req := struct {
		StartHeight uint64 `json:"startHeight"`
		EndHeight   uint64 `json:"endHeight"`
	}{start, end}

	var res struct {
		Indexes []LegacyIndexRange `json:"indexes"`
		Status  string             `json:"status"`
	}
	if err := c.post(ctx, "get_global_indexes_for_range", "/get_global_indexes_for_range", req, &res); err != nil {
		return nil, err
	}
	if err := checkStatus("get_global_indexes_for_range", res.Status, ""); err != nil {
		return nil, err
	}
	return res.Indexes, nil
}

// PoolChanges returns the pool delta relative to tailBlock and the transactions the
// caller already holds
func (c *LegacyClient) PoolChanges(ctx context.Context, tailBlock string, known []string) (*LegacyPoolChanges, error) {
	if err := ValidateHash("get_pool_changes_lite", tailBlock); err != nil {
		return nil, err
	}
	if err := ValidateHashes("get_pool_changes_lite", known); err != nil {
		return nil, err
	}

	req := struct {
		TailBlockID string   `json:"tailBlockId"`
		KnownTxIDs  []string `json:"knownTxsIds"`
	}{tailBlock, nonNil(known)}

	var res LegacyPoolChanges
	if err := c.post(ctx, "get_pool_changes_lite", "/get_pool_changes_lite", req, &res); err != nil {
		return nil, err
	}
	if err := checkStatus("get_pool_changes_lite", res.Status, ""); err != nil {
		return nil, err
	}
	return &res, nil
}

// RandomOutputs picks count decoy outputs for each amount. The result holds exactly one
// entry per amount with exactly count outputs each; anything shorter is a protocol error.
func (c *LegacyClient) RandomOutputs(ctx context.Context, amounts []uint64, count int) (*LegacyRandomOutputs, error) {
	if count <= 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "getrandom_outs", "count must be positive").
			WithContext("count", count)
	}

	req := struct {
		Amounts   []uint64 `json:"amounts"`
		OutsCount int      `json:"outs_count"`
	}{amounts, count}

	var res LegacyRandomOutputs
	if err := c.post(ctx, "getrandom_outs", "/getrandom_outs", req, &res); err != nil {
		return nil, err
	}
	if err := checkStatus("getrandom_outs", res.Status, ""); err != nil {
		return nil, err
	}

	sizes := make([]int, len(res.Outs))
	for i, o := range res.Outs {
		sizes[i] = len(o.Outs)
	}
	if err := checkDecoys("getrandom_outs", len(amounts), count, sizes); err != nil {
		return nil, err
	}
	return &res, nil
}

// RawBlocks returns a page of raw blocks for wallet synchronisation
func (c *LegacyClient) RawBlocks(ctx context.Context, req LegacySyncRequest) (*LegacyRawBlocks, error) {
	req, err := prepareLegacySync("getrawblocks", req)
	if err != nil {
		return nil, err
	}

	var res LegacyRawBlocks
	if err := c.post(ctx, "getrawblocks", "/getrawblocks", req, &res); err != nil {
		return nil, err
	}
	if err := checkStatus("getrawblocks", res.Status, ""); err != nil {
		return nil, err
	}
	if err := checkPage("getrawblocks", len(res.Items), req.BlockCount); err != nil {
		return nil, err
	}
	return &res, nil
}

// WalletSyncData returns a page of wallet sync blocks
func (c *LegacyClient) WalletSyncData(ctx context.Context, req LegacySyncRequest) (*LegacyWalletSyncData, error) {
	req, err := prepareLegacySync("getwalletsyncdata", req)
	if err != nil {
		return nil, err
	}

	var res LegacyWalletSyncData
	if err := c.post(ctx, "getwalletsyncdata", "/getwalletsyncdata", req, &res); err != nil {
		return nil, err
	}
	if err := checkStatus("getwalletsyncdata", res.Status, ""); err != nil {
		return nil, err
	}
	if err := checkPage("getwalletsyncdata", len(res.Items), req.BlockCount); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendRawTransaction relays a signed transaction blob. A stale or invalid transaction
// is a rejected error carrying the daemon's message.
func (c *LegacyClient) SendRawTransaction(ctx context.Context, blob string) error {
	if err := ValidateBlob("sendrawtransaction", blob); err != nil {
		return err
	}

	req := struct {
		TxAsHex string `json:"tx_as_hex"`
	}{blob}

	var res struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.post(ctx, "sendrawtransaction", "/sendrawtransaction", req, &res); err != nil {
		return err
	}
	if res.Status != statusOK {
		status := res.Status
		if status == "" {
			status = "missing status"
		}
		return checkStatus("sendrawtransaction", status, res.Error)
	}
	return nil
}

// TransactionStatus reports for each hash whether it is in a block, in the pool or unknown
func (c *LegacyClient) TransactionStatus(ctx context.Context, hashes []string) (*LegacyTransactionsStatus, error) {
	if err := ValidateHashes("get_transactions_status", hashes); err != nil {
		return nil, err
	}

	req := struct {
		TransactionHashes []string `json:"transactionHashes"`
	}{nonNil(hashes)}

	var res LegacyTransactionsStatus
	if err := c.post(ctx, "get_transactions_status", "/get_transactions_status", req, &res); err != nil {
		return nil, err
	}
	if err := checkStatus("get_transactions_status", res.Status, ""); err != nil {
		return nil, err
	}
	return &res, nil
}

func prepareLegacySync(operation string, req LegacySyncRequest) (LegacySyncRequest, error) {
	if req.BlockCount == 0 {
		req.BlockCount = DefaultSyncCount
	}
	if err := ValidateHashes(operation, req.BlockHashCheckpoints); err != nil {
		return req, err
	}
	req.BlockHashCheckpoints = nonNil(req.BlockHashCheckpoints)
	return req, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
