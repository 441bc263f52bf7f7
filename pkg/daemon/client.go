// Package daemon provides clients for the TurtleCoind HTTP API.
//
// Client speaks the REST API of TurtleCoind 1.0 and later. LegacyClient speaks the
// JSON-RPC and JSON endpoints of earlier releases. Both satisfy Node, and Detect picks
// the right one from the version a daemon reports.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bardlex/turtlego/pkg/errors"
	"github.com/bardlex/turtlego/pkg/transport"
)

const (
	// DefaultPort is the TurtleCoind RPC port
	DefaultPort = 11898
	// DefaultSyncCount is the page size used when SyncRequest.Count is zero
	DefaultSyncCount = 100
)

// BlockID selects a block by hash or by height
type BlockID struct {
	hash     string
	height   uint64
	byHeight bool
}

// ByHash selects the block with the given hash
func ByHash(hash string) BlockID {
	return BlockID{hash: hash}
}

// ByHeight selects the block at the given height
func ByHeight(height uint64) BlockID {
	return BlockID{height: height, byHeight: true}
}

// String renders the identifier as it appears in request paths
func (id BlockID) String() string {
	if id.byHeight {
		return strconv.FormatUint(id.height, 10)
	}
	return id.hash
}

func (id BlockID) validate(operation string) error {
	if id.byHeight {
		return nil
	}
	return ValidateHash(operation, id.hash)
}

// Client is a TurtleCoind >= 1.0 API client. It holds no per-call state and is safe
// for concurrent use.
type Client struct {
	rpc *transport.Client
}

var _ Node = (*Client)(nil)

// NewClient creates a client for the daemon at cfg. A zero port means DefaultPort.
//
// Parameters:
//   - cfg: Daemon host, port, TLS flag and per-request timeout
//   - opts: Transport options (HTTP client, logger, metrics)
//
// Returns:
//   - *Client: Client ready for use
//   - error: Validation error for an unusable configuration
func NewClient(cfg transport.Config, opts ...transport.Option) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	rpc, err := transport.New(cfg, append([]transport.Option{transport.WithName("daemon")}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: rpc}, nil
}

// Endpoint returns the daemon base URL
func (c *Client) Endpoint() string {
	return c.rpc.BaseURL()
}

func (c *Client) get(ctx context.Context, operation, path string, out any) error {
	return c.rpc.Do(ctx, transport.Call{Operation: operation, Method: http.MethodGet, Path: path, Out: out})
}

func (c *Client) post(ctx context.Context, operation, path string, body, out any) error {
	return c.rpc.Do(ctx, transport.Call{Operation: operation, Method: http.MethodPost, Path: path, Body: body, Out: out})
}

// Info retrieves the node summary, including the API version and whether the node
// runs in explorer mode.
//
// Parameters:
//   - ctx: Context for request cancellation and timeout
//
// Returns:
//   - *Info: Node metadata
//   - error: Any transport, protocol or daemon error
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.get(ctx, "info", "/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Version returns the version reported by /info
func (c *Client) Version(ctx context.Context) (Version, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return Version{}, err
	}
	return info.Version, nil
}

// Height returns the local and network heights
func (c *Client) Height(ctx context.Context) (*Height, error) {
	var h Height
	if err := c.get(ctx, "height", "/height", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Peers returns the peer lists
func (c *Client) Peers(ctx context.Context) (*Peers, error) {
	var p Peers
	if err := c.get(ctx, "peers", "/peers", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Fee returns the node operator fee
func (c *Client) Fee(ctx context.Context) (*Fee, error) {
	var f Fee
	if err := c.get(ctx, "fee", "/fee", &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// BlockCount returns the number of blocks in the local chain
func (c *Client) BlockCount(ctx context.Context) (uint64, error) {
	var resp struct {
		Count uint64 `json:"count"`
	}
	if err := c.get(ctx, "block_count", "/block/count", &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Block returns a block by hash or height. Requires an explorer node.
//
// Parameters:
//   - ctx: Context for request cancellation and timeout
//   - id: ByHash or ByHeight
//
// Returns:
//   - *Block: Header and transaction summaries
//   - error: Validation error for a malformed hash, or any daemon error
func (c *Client) Block(ctx context.Context, id BlockID) (*Block, error) {
	if err := id.validate("block"); err != nil {
		return nil, err
	}

	var b Block
	if err := c.get(ctx, "block", "/block/"+id.String(), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// RawBlock returns the hex blob of a block and its transactions. Requires an explorer node.
func (c *Client) RawBlock(ctx context.Context, id BlockID) (*RawBlock, error) {
	if err := id.validate("raw_block"); err != nil {
		return nil, err
	}

	var b RawBlock
	if err := c.get(ctx, "raw_block", "/block/"+id.String()+"/raw", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// LastBlock returns the header of the chain tip. Its depth is always zero.
func (c *Client) LastBlock(ctx context.Context) (*BlockHeader, error) {
	var b BlockHeader
	if err := c.get(ctx, "last_block", "/block/last", &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// BlockHeaders returns up to 31 headers ending at height, newest first. Requires an
// explorer node.
func (c *Client) BlockHeaders(ctx context.Context, height uint64) ([]BlockHeader, error) {
	var headers []BlockHeader
	path := "/block/headers/" + strconv.FormatUint(height, 10)
	if err := c.get(ctx, "block_headers", path, &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// BlockTemplate requests a block template paying to address.
//
// Parameters:
//   - ctx: Context for request cancellation and timeout
//   - address: Wallet address receiving the block reward
//   - reserveSize: Bytes reserved in the coinbase extra for an extra nonce
//
// Returns:
//   - *BlockTemplate: Template with a difficulty greater than zero
//   - error: Any daemon error, or a protocol error for a zero difficulty
func (c *Client) BlockTemplate(ctx context.Context, address string, reserveSize int) (*BlockTemplate, error) {
	if reserveSize < 0 || reserveSize > 255 {
		return nil, errors.New(errors.ErrorTypeValidation, "block_template", "reserve size must be between 0 and 255").
			WithContext("reserve_size", reserveSize)
	}

	req := struct {
		Address     string `json:"address"`
		ReserveSize int    `json:"reserveSize"`
	}{address, reserveSize}

	var t BlockTemplate
	if err := c.post(ctx, "block_template", "/block/template", req, &t); err != nil {
		return nil, err
	}
	if err := checkTemplate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SubmitBlock submits a mined block blob and returns its hash. A stale or invalid block
// is a rejected error.
func (c *Client) SubmitBlock(ctx context.Context, blob string) (string, error) {
	if err := ValidateBlob("submit_block", blob); err != nil {
		return "", err
	}

	var resp struct {
		Hash string `json:"hash"`
	}
	if err := c.post(ctx, "submit_block", "/block", blob, &resp); err != nil {
		return "", err
	}
	return resp.Hash, nil
}

// SubmitTransaction relays a signed transaction blob and returns its hash
func (c *Client) SubmitTransaction(ctx context.Context, blob string) (string, error) {
	if err := ValidateBlob("submit_transaction", blob); err != nil {
		return "", err
	}

	var resp struct {
		Hash string `json:"hash"`
	}
	if err := c.post(ctx, "submit_transaction", "/transaction", blob, &resp); err != nil {
		return "", err
	}
	return resp.Hash, nil
}

// Transaction returns the explorer view of a transaction. Requires an explorer node.
func (c *Client) Transaction(ctx context.Context, hash string) (*Transaction, error) {
	if err := ValidateHash("transaction", hash); err != nil {
		return nil, err
	}

	var tx Transaction
	if err := c.get(ctx, "transaction", "/transaction/"+hash, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// RawTransaction returns the hex blob of a transaction. Requires an explorer node.
func (c *Client) RawTransaction(ctx context.Context, hash string) (string, error) {
	if err := ValidateHash("raw_transaction", hash); err != nil {
		return "", err
	}

	var blob string
	if err := c.get(ctx, "raw_transaction", "/transaction/"+hash+"/raw", &blob); err != nil {
		return "", err
	}
	return blob, nil
}

// TransactionPool returns summaries of the pooled transactions. Requires an explorer node.
func (c *Client) TransactionPool(ctx context.Context) ([]TransactionSummary, error) {
	var pool []TransactionSummary
	if err := c.get(ctx, "transaction_pool", "/transaction/pool", &pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// RawTransactionPool returns the hex blobs of the pooled transactions. Requires an
// explorer node.
func (c *Client) RawTransactionPool(ctx context.Context) ([]string, error) {
	var pool []string
	if err := c.get(ctx, "raw_transaction_pool", "/transaction/pool/raw", &pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// TransactionPoolChanges returns the pool delta relative to lastKnownBlock and the
// transactions the caller already holds. Synced is false when lastKnownBlock is not
// the tip.
func (c *Client) TransactionPoolChanges(ctx context.Context, lastKnownBlock string, known []string) (*PoolChanges, error) {
	if err := ValidateHash("transaction_pool_changes", lastKnownBlock); err != nil {
		return nil, err
	}
	if err := ValidateHashes("transaction_pool_changes", known); err != nil {
		return nil, err
	}
	req := struct {
		LastKnownBlock string   `json:"lastKnownBlock"`
		Transactions   []string `json:"transactions"`
	}{lastKnownBlock, nonNil(known)}

	var changes PoolChanges
	if err := c.post(ctx, "transaction_pool_changes", "/transaction/pool/delta", req, &changes); err != nil {
		return nil, err
	}
	return &changes, nil
}

// TransactionsStatus reports for each hash whether it is in a block, in the pool or unknown
func (c *Client) TransactionsStatus(ctx context.Context, hashes []string) (*TransactionsStatus, error) {
	if err := ValidateHashes("transactions_status", hashes); err != nil {
		return nil, err
	}

	var status TransactionsStatus
	if err := c.post(ctx, "transactions_status", "/transaction/status", nonNil(hashes), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Indexes returns the global output indexes of every transaction in blocks start
// through end inclusive.
func (c *Client) Indexes(ctx context.Context, start, end uint64) ([]TransactionIndexes, error) {
	if end < start {
		return nil, errors.New(errors.ErrorTypeValidation, "indexes", "end height before start height").
			WithContext("start", start).
			WithContext("end", end)
	}

	var indexes []TransactionIndexes
	path := fmt.Sprintf("/indexes/%d/%d", start, end)
	if err := c.get(ctx, "indexes", path, &indexes); err != nil {
		return nil, err
	}
	return indexes, nil
}

// RandomIndexes picks count decoy outputs for each amount. The result holds exactly one
// entry per amount with exactly count outputs each; anything shorter is a protocol error.
func (c *Client) RandomIndexes(ctx context.Context, amounts []uint64, count int) ([]RandomOutputs, error) {
	if count <= 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "random_indexes", "count must be positive").
			WithContext("count", count)
	}

	req := struct {
		Amounts []uint64 `json:"amounts"`
		Count   int      `json:"count"`
	}{amounts, count}

	var outs []RandomOutputs
	if err := c.post(ctx, "random_indexes", "/indexes/random", req, &outs); err != nil {
		return nil, err
	}

	sizes := make([]int, len(outs))
	for i, o := range outs {
		sizes[i] = len(o.Outputs)
	}
	if err := checkDecoys("random_indexes", len(amounts), count, sizes); err != nil {
		return nil, err
	}
	return outs, nil
}

// Sync returns a page of blocks for wallet synchronisation
func (c *Client) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	req, err := prepareSync("sync", req)
	if err != nil {
		return nil, err
	}

	var res SyncResult
	if err := c.post(ctx, "sync", "/sync", req, &res); err != nil {
		return nil, err
	}
	if err := checkPage("sync", len(res.Blocks), req.Count); err != nil {
		return nil, err
	}
	return &res, nil
}

// RawSync returns a page of raw block blobs for wallet synchronisation
func (c *Client) RawSync(ctx context.Context, req SyncRequest) (*RawSyncResult, error) {
	req, err := prepareSync("raw_sync", req)
	if err != nil {
		return nil, err
	}

	var res RawSyncResult
	if err := c.post(ctx, "raw_sync", "/sync/raw", req, &res); err != nil {
		return nil, err
	}
	if err := checkPage("raw_sync", len(res.Blocks), req.Count); err != nil {
		return nil, err
	}
	return &res, nil
}

func prepareSync(operation string, req SyncRequest) (SyncRequest, error) {
	if req.Count == 0 {
		req.Count = DefaultSyncCount
	}
	if err := ValidateHashes(operation, req.Checkpoints); err != nil {
		return req, err
	}
	req.Checkpoints = nonNil(req.Checkpoints)
	return req, nil
}

func checkTemplate(t *BlockTemplate) error {
	if t.Difficulty == 0 {
		return errors.New(errors.ErrorTypeProtocol, "block_template", "daemon returned a template with zero difficulty")
	}
	if err := ValidateBlob("block_template", t.Blob); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProtocol, "block_template", "daemon returned a malformed template blob")
	}
	return nil
}

func checkDecoys(operation string, amounts, count int, sizes []int) error {
	if len(sizes) != amounts {
		return errors.New(errors.ErrorTypeProtocol, operation, "daemon returned decoys for the wrong number of amounts").
			WithContext("requested", amounts).
			WithContext("returned", len(sizes))
	}
	for i, n := range sizes {
		if n != count {
			return errors.New(errors.ErrorTypeProtocol, operation, "daemon returned the wrong number of decoys").
				WithContext("index", i).
				WithContext("requested", count).
				WithContext("returned", n)
		}
	}
	return nil
}

func checkPage(operation string, got int, limit uint64) error {
	if uint64(got) > limit {
		return errors.New(errors.ErrorTypeProtocol, operation, "daemon returned more blocks than requested").
			WithContext("requested", limit).
			WithContext("returned", got)
	}
	return nil
}
