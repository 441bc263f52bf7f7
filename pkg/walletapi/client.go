// Package walletapi provides a client for the wallet-api HTTP service.
//
// wallet-api holds at most one open wallet. Create, Open and the Import calls open a
// wallet file, Close saves and closes it, and every other call operates on the open
// wallet. The client keeps no session state of its own.
package walletapi

import (
	"context"
	"encoding/hex"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bardlex/turtlego/pkg/address"
	"github.com/bardlex/turtlego/pkg/errors"
	"github.com/bardlex/turtlego/pkg/transport"
)

const (
	// DefaultPort is the wallet-api listen port
	DefaultPort = 8070
	// DefaultDecimalDivisor converts TRTL to atomic units
	DefaultDecimalDivisor = 100
	// APIKeyHeader carries the RPC password
	APIKeyHeader = "X-API-KEY"

	defaultDaemonHost = "127.0.0.1"
	defaultDaemonPort = 11898
)

// Config describes a wallet-api instance
type Config struct {
	transport.Config

	// Password is the wallet-api RPC password, not a wallet file password
	Password string

	// DecimalDivisor is the number of atomic units per coin. Zero means DefaultDecimalDivisor.
	DecimalDivisor uint64

	// Node is the daemon used by Create, Open and the Import calls when they are given
	// a zero NodeConfig. Zero means 127.0.0.1:11898.
	Node NodeConfig

	// Defaults applied to AdvancedTransfer fields the caller leaves nil
	DefaultMixin      *uint64
	DefaultFee        *uint64
	DefaultUnlockTime *uint64
}

// Client is a wallet-api client. It holds no per-call state and is safe for concurrent use.
type Client struct {
	rpc     *transport.Client
	divisor uint64
	node    NodeConfig

	mixin      *uint64
	fee        *uint64
	unlockTime *uint64
}

// NewClient creates a client for the wallet-api at cfg. The password is sent in
// X-API-KEY on every request.
//
// Parameters:
//   - cfg: wallet-api location, RPC password and transfer defaults
//   - opts: Transport options (HTTP client, logger, metrics)
//
// Returns:
//   - *Client: Client ready for use
//   - error: Validation error for an unusable configuration
func NewClient(cfg Config, opts ...transport.Option) (*Client, error) {
	tc := cfg.Config
	if tc.Port == 0 {
		tc.Port = DefaultPort
	}
	tc.APIKey = cfg.Password
	tc.APIKeyHeader = APIKeyHeader

	rpc, err := transport.New(tc, append([]transport.Option{transport.WithName("wallet_api")}, opts...)...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		rpc:        rpc,
		divisor:    cfg.DecimalDivisor,
		node:       cfg.Node,
		mixin:      cfg.DefaultMixin,
		fee:        cfg.DefaultFee,
		unlockTime: cfg.DefaultUnlockTime,
	}
	if c.divisor == 0 {
		c.divisor = DefaultDecimalDivisor
	}
	if c.node.DaemonHost == "" {
		c.node = NodeConfig{DaemonHost: defaultDaemonHost, DaemonPort: defaultDaemonPort}
	}
	return c, nil
}

// Endpoint returns the wallet-api base URL
func (c *Client) Endpoint() string {
	return c.rpc.BaseURL()
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	return c.rpc.Do(ctx, transport.Call{Operation: operation, Method: method, Path: path, Body: body, Out: out})
}

// Alive reports whether wallet-api answers at all, with or without an open wallet
func (c *Client) Alive(ctx context.Context) bool {
	return c.rpc.Probe(ctx, "/status")
}

// NewDestination converts a human amount to atomic units. Rounding absorbs binary
// floating point error, so 1.15 becomes 115 and not 114.
//
// Parameters:
//   - addr: Receiving address, checked later by the send and prepare calls
//   - amount: Amount in coins
//
// Returns:
//   - Destination: Address with the amount in atomic units
//   - error: Validation error for a negative, non-finite or out of range amount
func (c *Client) NewDestination(addr string, amount float64) (Destination, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return Destination{}, errors.New(errors.ErrorTypeValidation, "new_destination", "amount must be a finite, non-negative number").
			WithContext("amount", amount)
	}
	atomic := math.Round(amount * float64(c.divisor))
	// float64(math.MaxUint64) rounds up to 2^64, the first value that does not fit
	if atomic >= math.MaxUint64 {
		return Destination{}, errors.New(errors.ErrorTypeValidation, "new_destination", "amount does not fit in atomic units").
			WithContext("amount", amount)
	}
	return Destination{Address: addr, Amount: uint64(atomic)}, nil
}

// ToCoins converts atomic units to a human amount
func (c *Client) ToCoins(atomic uint64) float64 {
	return float64(atomic) / float64(c.divisor)
}

// Wallet lifecycle

type openRequest struct {
	NodeConfig
	Filename string `json:"filename"`
	Password string `json:"password"`
}

func (c *Client) open(node NodeConfig, filename, password string) openRequest {
	if node.DaemonHost == "" {
		node = c.node
	}
	if node.DaemonPort == 0 {
		node.DaemonPort = defaultDaemonPort
	}
	return openRequest{NodeConfig: node, Filename: filename, Password: password}
}

func checkFile(operation, filename string) error {
	if filename == "" {
		return errors.New(errors.ErrorTypeValidation, operation, "filename is required")
	}
	return nil
}

// Create creates and opens a new wallet file. A zero node means the configured daemon.
//
// Parameters:
//   - ctx: Context for request cancellation and timeout
//   - filename: Wallet file path on the wallet-api host
//   - password: Wallet file password
//   - node: Daemon the wallet synchronises from
//
// Returns:
//   - error: Rejected when the file exists or another wallet is already open
func (c *Client) Create(ctx context.Context, filename, password string, node NodeConfig) error {
	if err := checkFile("create", filename); err != nil {
		return err
	}
	return c.do(ctx, "create", http.MethodPost, "/wallet/create", c.open(node, filename, password), nil)
}

// Open opens an existing wallet file
func (c *Client) Open(ctx context.Context, filename, password string, node NodeConfig) error {
	if err := checkFile("open", filename); err != nil {
		return err
	}
	return c.do(ctx, "open", http.MethodPost, "/wallet/open", c.open(node, filename, password), nil)
}

// ImportKey creates a wallet file from a private view and spend key pair and opens it.
// Scanning starts at scanHeight.
func (c *Client) ImportKey(ctx context.Context, filename, password, privateViewKey, privateSpendKey string, scanHeight uint64, node NodeConfig) error {
	if err := checkFile("import_key", filename); err != nil {
		return err
	}
	if err := validateKey("import_key", privateViewKey); err != nil {
		return err
	}
	if err := validateKey("import_key", privateSpendKey); err != nil {
		return err
	}

	req := struct {
		openRequest
		ScanHeight      uint64 `json:"scanHeight"`
		PrivateViewKey  string `json:"privateViewKey"`
		PrivateSpendKey string `json:"privateSpendKey"`
	}{c.open(node, filename, password), scanHeight, privateViewKey, privateSpendKey}
	return c.do(ctx, "import_key", http.MethodPost, "/wallet/import/key", req, nil)
}

// ImportSeed creates a wallet file from a 25 word mnemonic seed and opens it
func (c *Client) ImportSeed(ctx context.Context, filename, password, mnemonicSeed string, scanHeight uint64, node NodeConfig) error {
	if err := checkFile("import_seed", filename); err != nil {
		return err
	}
	if mnemonicSeed == "" {
		return errors.New(errors.ErrorTypeValidation, "import_seed", "mnemonic seed is required")
	}

	req := struct {
		openRequest
		ScanHeight   uint64 `json:"scanHeight"`
		MnemonicSeed string `json:"mnemonicSeed"`
	}{c.open(node, filename, password), scanHeight, mnemonicSeed}
	return c.do(ctx, "import_seed", http.MethodPost, "/wallet/import/seed", req, nil)
}

// ImportViewOnly creates a view only wallet file for addr and opens it
func (c *Client) ImportViewOnly(ctx context.Context, filename, password, privateViewKey, addr string, scanHeight uint64, node NodeConfig) error {
	if err := checkFile("import_view", filename); err != nil {
		return err
	}
	if err := validateKey("import_view", privateViewKey); err != nil {
		return err
	}
	if err := checkAddress("import_view", addr); err != nil {
		return err
	}

	req := struct {
		openRequest
		ScanHeight     uint64 `json:"scanHeight"`
		PrivateViewKey string `json:"privateViewKey"`
		Address        string `json:"address"`
	}{c.open(node, filename, password), scanHeight, privateViewKey, addr}
	return c.do(ctx, "import_view", http.MethodPost, "/wallet/import/view", req, nil)
}

// Close saves and closes the open wallet
func (c *Client) Close(ctx context.Context) error {
	return c.do(ctx, "close", http.MethodDelete, "/wallet", nil, nil)
}

// Save writes the open wallet to disk
func (c *Client) Save(ctx context.Context) error {
	return c.do(ctx, "save", http.MethodPut, "/save", nil, nil)
}

// Reset discards synchronisation data and rescans from scanHeight
func (c *Client) Reset(ctx context.Context, scanHeight uint64) error {
	req := struct {
		ScanHeight uint64 `json:"scanHeight"`
	}{scanHeight}
	return c.do(ctx, "reset", http.MethodPut, "/reset", req, nil)
}

// Node returns the daemon the open wallet uses
func (c *Client) Node(ctx context.Context) (*NodeInfo, error) {
	var n NodeInfo
	if err := c.do(ctx, "node", http.MethodGet, "/node", nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// SetNode switches the open wallet to another daemon
func (c *Client) SetNode(ctx context.Context, node NodeConfig) error {
	if node.DaemonHost == "" || node.DaemonPort <= 0 || node.DaemonPort > 65535 {
		return errors.New(errors.ErrorTypeValidation, "set_node", "daemon host and port are required").
			WithContext("host", node.DaemonHost).
			WithContext("port", node.DaemonPort)
	}
	return c.do(ctx, "set_node", http.MethodPut, "/node", node, nil)
}

// Status returns synchronisation and network state of the open wallet
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.do(ctx, "status", http.MethodGet, "/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Addresses

// Addresses lists the addresses of every subwallet, primary first
func (c *Client) Addresses(ctx context.Context) ([]string, error) {
	var resp struct {
		Addresses []string `json:"addresses"`
	}
	if err := c.do(ctx, "addresses", http.MethodGet, "/addresses", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Addresses, nil
}

// PrimaryAddress returns the address of the first subwallet
func (c *Client) PrimaryAddress(ctx context.Context) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, "primary_address", http.MethodGet, "/addresses/primary", nil, &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

// CreateAddress adds a random subwallet
func (c *Client) CreateAddress(ctx context.Context) (*CreatedAddress, error) {
	var a CreatedAddress
	if err := c.do(ctx, "create_address", http.MethodPost, "/addresses/create", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAddress removes a subwallet. The primary address cannot be deleted.
func (c *Client) DeleteAddress(ctx context.Context, addr string) error {
	if err := checkAddress("delete_address", addr); err != nil {
		return err
	}
	return c.do(ctx, "delete_address", http.MethodDelete, "/addresses/"+url.PathEscape(addr), nil, nil)
}

func (c *Client) importAddress(ctx context.Context, operation, path string, body any) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, operation, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

// ImportAddress adds a subwallet from its private spend key and returns its address
func (c *Client) ImportAddress(ctx context.Context, privateSpendKey string, scanHeight uint64) (string, error) {
	if err := validateKey("import_address", privateSpendKey); err != nil {
		return "", err
	}
	req := struct {
		PrivateSpendKey string `json:"privateSpendKey"`
		ScanHeight      uint64 `json:"scanHeight"`
	}{privateSpendKey, scanHeight}
	return c.importAddress(ctx, "import_address", "/addresses/import", req)
}

// ImportDeterministic adds the subwallet derived at walletIndex and returns its address
func (c *Client) ImportDeterministic(ctx context.Context, walletIndex, scanHeight uint64) (string, error) {
	req := struct {
		WalletIndex uint64 `json:"walletIndex"`
		ScanHeight  uint64 `json:"scanHeight"`
	}{walletIndex, scanHeight}
	return c.importAddress(ctx, "import_deterministic", "/addresses/import/deterministic", req)
}

// ImportViewAddress adds a view only subwallet from its public spend key
func (c *Client) ImportViewAddress(ctx context.Context, publicSpendKey string, scanHeight uint64) (string, error) {
	if err := validateKey("import_view_address", publicSpendKey); err != nil {
		return "", err
	}
	req := struct {
		PublicSpendKey string `json:"publicSpendKey"`
		ScanHeight     uint64 `json:"scanHeight"`
	}{publicSpendKey, scanHeight}
	return c.importAddress(ctx, "import_view_address", "/addresses/import/view", req)
}

// CreateIntegratedAddress combines a standard address and a payment ID. Both are
// checked locally first.
func (c *Client) CreateIntegratedAddress(ctx context.Context, addr, paymentID string) (string, error) {
	decoded, err := address.Decode(addr)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "create_integrated_address", "invalid address")
	}
	if decoded.IsIntegrated() {
		return "", errors.New(errors.ErrorTypeValidation, "create_integrated_address", "address is already integrated").
			WithContext("address", addr)
	}
	if err := address.ValidatePaymentID(paymentID); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "create_integrated_address", "invalid payment ID").
			WithContext("payment_id", paymentID)
	}

	var resp struct {
		IntegratedAddress string `json:"integratedAddress"`
	}
	path := "/addresses/" + url.PathEscape(addr) + "/" + url.PathEscape(paymentID)
	if err := c.do(ctx, "create_integrated_address", http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.IntegratedAddress, nil
}

// ValidateAddress asks wallet-api to parse addr. Addresses that fail the local checksum
// are rejected without a request.
func (c *Client) ValidateAddress(ctx context.Context, addr string) (*ValidatedAddress, error) {
	if err := checkAddress("validate_address", addr); err != nil {
		return nil, err
	}

	req := struct {
		Address string `json:"address"`
	}{addr}

	var v ValidatedAddress
	if err := c.do(ctx, "validate_address", http.MethodPost, "/addresses/validate", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Balances and keys

// Balance returns the balance of the whole wallet, or of addr when it is not empty
func (c *Client) Balance(ctx context.Context, addr string) (*Balance, error) {
	path := "/balance"
	if addr != "" {
		if err := checkAddress("balance", addr); err != nil {
			return nil, err
		}
		path += "/" + url.PathEscape(addr)
	}

	var b Balance
	if err := c.do(ctx, "balance", http.MethodGet, path, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Balances returns the balance of every subwallet
func (c *Client) Balances(ctx context.Context) ([]AddressBalance, error) {
	var b []AddressBalance
	if err := c.do(ctx, "balances", http.MethodGet, "/balances", nil, &b); err != nil {
		return nil, err
	}
	return b, nil
}

// Keys returns the shared private view key
func (c *Client) Keys(ctx context.Context) (string, error) {
	var resp struct {
		PrivateViewKey string `json:"privateViewKey"`
	}
	if err := c.do(ctx, "keys", http.MethodGet, "/keys", nil, &resp); err != nil {
		return "", err
	}
	return resp.PrivateViewKey, nil
}

// KeysFor returns the spend keys of the subwallet owning addr
func (c *Client) KeysFor(ctx context.Context, addr string) (*SpendKeys, error) {
	if err := checkAddress("keys", addr); err != nil {
		return nil, err
	}
	var k SpendKeys
	if err := c.do(ctx, "keys", http.MethodGet, "/keys/"+url.PathEscape(addr), nil, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

// KeysMnemonic returns the mnemonic seed of the subwallet owning addr. Only
// deterministic subwallets have one.
func (c *Client) KeysMnemonic(ctx context.Context, addr string) (string, error) {
	if err := checkAddress("keys_mnemonic", addr); err != nil {
		return "", err
	}
	var resp struct {
		MnemonicSeed string `json:"mnemonicSeed"`
	}
	if err := c.do(ctx, "keys_mnemonic", http.MethodGet, "/keys/mnemonic/"+url.PathEscape(addr), nil, &resp); err != nil {
		return "", err
	}
	return resp.MnemonicSeed, nil
}

// Transactions

func (c *Client) transactions(ctx context.Context, operation, path string) ([]Transaction, error) {
	var resp struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, operation, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Transactions == nil {
		return []Transaction{}, nil
	}
	return resp.Transactions, nil
}

func heightRange(start, end uint64) (string, error) {
	if end == 0 {
		return "/" + strconv.FormatUint(start, 10), nil
	}
	if end < start {
		return "", errors.New(errors.ErrorTypeValidation, "transactions", "end height before start height").
			WithContext("start", start).
			WithContext("end", end)
	}
	return "/" + strconv.FormatUint(start, 10) + "/" + strconv.FormatUint(end, 10), nil
}

// Transactions returns every transaction of the wallet
func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	return c.transactions(ctx, "transactions", "/transactions")
}

// TransactionsRange returns the transactions in blocks start up to end. A zero end
// means the chain tip.
func (c *Client) TransactionsRange(ctx context.Context, start, end uint64) ([]Transaction, error) {
	r, err := heightRange(start, end)
	if err != nil {
		return nil, err
	}
	return c.transactions(ctx, "transactions", "/transactions"+r)
}

// TransactionsByAddress returns the transactions touching addr in blocks start up to
// end. A zero end means the chain tip.
func (c *Client) TransactionsByAddress(ctx context.Context, addr string, start, end uint64) ([]Transaction, error) {
	if err := checkAddress("transactions_by_address", addr); err != nil {
		return nil, err
	}
	r, err := heightRange(start, end)
	if err != nil {
		return nil, err
	}
	return c.transactions(ctx, "transactions_by_address", "/transactions/address/"+url.PathEscape(addr)+r)
}

// UnconfirmedTransactions returns the pooled transactions of the wallet, or of addr
// when it is not empty
func (c *Client) UnconfirmedTransactions(ctx context.Context, addr string) ([]Transaction, error) {
	path := "/transactions/unconfirmed"
	if addr != "" {
		if err := checkAddress("unconfirmed_transactions", addr); err != nil {
			return nil, err
		}
		path += "/" + url.PathEscape(addr)
	}
	return c.transactions(ctx, "unconfirmed_transactions", path)
}

// TransactionByHash returns one wallet transaction
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	if err := validateHash("transaction_by_hash", hash); err != nil {
		return nil, err
	}
	var resp struct {
		Transaction Transaction `json:"transaction"`
	}
	if err := c.do(ctx, "transaction_by_hash", http.MethodGet, "/transactions/hash/"+hash, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Transaction, nil
}

// TransactionPrivateKey returns the private key of an outgoing transaction
func (c *Client) TransactionPrivateKey(ctx context.Context, hash string) (string, error) {
	if err := validateHash("transaction_private_key", hash); err != nil {
		return "", err
	}
	var resp struct {
		TransactionPrivateKey string `json:"transactionPrivateKey"`
	}
	if err := c.do(ctx, "transaction_private_key", http.MethodGet, "/transactions/privatekey/"+hash, nil, &resp); err != nil {
		return "", err
	}
	return resp.TransactionPrivateKey, nil
}

func (c *Client) send(ctx context.Context, operation, path string, body any) (*SendResult, error) {
	var r SendResult
	if err := c.do(ctx, operation, http.MethodPost, path, body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func checkBasic(operation string, t BasicTransfer) error {
	if err := checkAddress(operation, t.Destination); err != nil {
		return err
	}
	if t.Amount == 0 {
		return errors.New(errors.ErrorTypeValidation, operation, "amount must be positive")
	}
	if t.PaymentID != "" {
		if err := address.ValidatePaymentID(t.PaymentID); err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, operation, "invalid payment ID")
		}
	}
	return nil
}

func (c *Client) prepareAdvanced(operation string, t AdvancedTransfer) (AdvancedTransfer, error) {
	if len(t.Destinations) == 0 {
		return t, errors.New(errors.ErrorTypeValidation, operation, "at least one destination is required")
	}
	for i, d := range t.Destinations {
		if err := checkAddress(operation, d.Address); err != nil {
			return t, err
		}
		if d.Amount == 0 {
			return t, errors.New(errors.ErrorTypeValidation, operation, "amount must be positive").
				WithContext("destination", i)
		}
	}
	for _, a := range t.SourceAddresses {
		if err := checkAddress(operation, a); err != nil {
			return t, err
		}
	}
	if t.ChangeAddress != "" {
		if err := checkAddress(operation, t.ChangeAddress); err != nil {
			return t, err
		}
	}
	if t.PaymentID != "" {
		if err := address.ValidatePaymentID(t.PaymentID); err != nil {
			return t, errors.Wrap(err, errors.ErrorTypeValidation, operation, "invalid payment ID")
		}
	}
	if t.Extra != "" {
		if _, err := hex.DecodeString(t.Extra); err != nil {
			return t, errors.Wrap(err, errors.ErrorTypeValidation, operation, "extra is not hex")
		}
	}
	if t.Fee != nil && t.FeePerByte != nil {
		return t, errors.New(errors.ErrorTypeValidation, operation, "fee and fee per byte are mutually exclusive")
	}

	if t.Mixin == nil {
		t.Mixin = c.mixin
	}
	if t.Fee == nil && t.FeePerByte == nil {
		t.Fee = c.fee
	}
	if t.UnlockTime == nil {
		t.UnlockTime = c.unlockTime
	}
	return t, nil
}

// SendBasic builds and relays a transaction to one destination
//
// Parameters:
//   - ctx: Context for request cancellation and timeout
//   - t: Destination, amount in atomic units and optional payment ID
//
// Returns:
//   - *SendResult: Hash and fee of the relayed transaction
//   - error: Validation error for a malformed destination, or Rejected for
//     insufficient funds and similar wallet refusals
func (c *Client) SendBasic(ctx context.Context, t BasicTransfer) (*SendResult, error) {
	if err := checkBasic("send_basic", t); err != nil {
		return nil, err
	}
	return c.send(ctx, "send_basic", "/transactions/send/basic", t)
}

// SendAdvanced builds and relays a transaction with full control over its parameters
func (c *Client) SendAdvanced(ctx context.Context, t AdvancedTransfer) (*SendResult, error) {
	t, err := c.prepareAdvanced("send_advanced", t)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "send_advanced", "/transactions/send/advanced", t)
}

// PrepareBasic builds a transaction like SendBasic without relaying it
func (c *Client) PrepareBasic(ctx context.Context, t BasicTransfer) (*SendResult, error) {
	if err := checkBasic("prepare_basic", t); err != nil {
		return nil, err
	}
	return c.send(ctx, "prepare_basic", "/transactions/prepare/basic", t)
}

// PrepareAdvanced builds a transaction like SendAdvanced without relaying it
func (c *Client) PrepareAdvanced(ctx context.Context, t AdvancedTransfer) (*SendResult, error) {
	t, err := c.prepareAdvanced("prepare_advanced", t)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "prepare_advanced", "/transactions/prepare/advanced", t)
}

// SendPrepared relays a transaction built by PrepareBasic or PrepareAdvanced
func (c *Client) SendPrepared(ctx context.Context, hash string) (*SendResult, error) {
	if err := validateHash("send_prepared", hash); err != nil {
		return nil, err
	}
	req := struct {
		TransactionHash string `json:"transactionHash"`
	}{hash}
	return c.send(ctx, "send_prepared", "/transactions/send/prepared", req)
}

// DeletePreparedTransaction discards a prepared transaction
func (c *Client) DeletePreparedTransaction(ctx context.Context, hash string) error {
	if err := validateHash("delete_prepared_transaction", hash); err != nil {
		return err
	}
	return c.do(ctx, "delete_prepared_transaction", http.MethodDelete, "/transactions/prepared/"+hash, nil, nil)
}

// SendFusionBasic merges small outputs of the wallet into larger ones
func (c *Client) SendFusionBasic(ctx context.Context) (string, error) {
	r, err := c.send(ctx, "send_fusion_basic", "/transactions/send/fusion/basic", struct{}{})
	if err != nil {
		return "", err
	}
	return r.TransactionHash, nil
}

// SendFusionAdvanced merges small outputs of the given source addresses
func (c *Client) SendFusionAdvanced(ctx context.Context, f FusionAdvanced) (string, error) {
	if f.Destination != "" {
		if err := checkAddress("send_fusion_advanced", f.Destination); err != nil {
			return "", err
		}
	}
	for _, a := range f.SourceAddresses {
		if err := checkAddress("send_fusion_advanced", a); err != nil {
			return "", err
		}
	}
	if f.Mixin == nil {
		f.Mixin = c.mixin
	}

	r, err := c.send(ctx, "send_fusion_advanced", "/transactions/send/fusion/advanced", f)
	if err != nil {
		return "", err
	}
	return r.TransactionHash, nil
}

// checkAddress rejects addresses that do not decode or fail their checksum
func checkAddress(operation, addr string) error {
	if err := address.Validate(addr); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, operation, "invalid address").
			WithContext("address", addr)
	}
	return nil
}

func validateHash(operation, hash string) error {
	return checkHex32(operation, "hash", hash)
}

func validateKey(operation, key string) error {
	return checkHex32(operation, "key", key)
}

func checkHex32(operation, what, s string) error {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return errors.New(errors.ErrorTypeValidation, operation, what+" must be 64 hex characters").
			WithContext(what, s)
	}
	return nil
}
