package walletapi

// NodeConfig is the daemon a wallet synchronises from
type NodeConfig struct {
	DaemonHost string `json:"daemonHost"`
	DaemonPort int    `json:"daemonPort"`
	DaemonSSL  bool   `json:"daemonSSL"`
}

// NodeInfo is GET /node
type NodeInfo struct {
	NodeConfig
	NodeFee     uint64 `json:"nodeFee"`
	NodeAddress string `json:"nodeAddress"`
}

// Status is GET /status
type Status struct {
	WalletBlockCount      uint64  `json:"walletBlockCount"`
	LocalDaemonBlockCount uint64  `json:"localDaemonBlockCount"`
	NetworkBlockCount     uint64  `json:"networkBlockCount"`
	PeerCount             uint64  `json:"peerCount"`
	Hashrate              float64 `json:"hashrate"`
	IsViewWallet          bool    `json:"isViewWallet"`
	SubWalletCount        uint64  `json:"subWalletCount"`
}

// Synced reports whether the wallet has caught up with the network
func (s *Status) Synced() bool {
	return s.NetworkBlockCount > 0 && s.WalletBlockCount >= s.NetworkBlockCount
}

// Balance is an amount in atomic units split by spendability
type Balance struct {
	Unlocked uint64 `json:"unlocked"`
	Locked   uint64 `json:"locked"`
}

// AddressBalance is the balance of one subwallet
type AddressBalance struct {
	Address string `json:"address"`
	Balance
}

// CreatedAddress is the result of POST /addresses/create
type CreatedAddress struct {
	Address         string `json:"address"`
	PrivateSpendKey string `json:"privateSpendKey"`
	PublicSpendKey  string `json:"publicSpendKey"`
}

// SpendKeys are the spend keys of one subwallet
type SpendKeys struct {
	PrivateSpendKey string `json:"privateSpendKey"`
	PublicSpendKey  string `json:"publicSpendKey"`
}

// ValidatedAddress is the result of POST /addresses/validate
type ValidatedAddress struct {
	IsIntegrated   bool   `json:"isIntegrated"`
	PaymentID      string `json:"paymentID"`
	ActualAddress  string `json:"actualAddress"`
	PublicSpendKey string `json:"publicSpendKey"`
	PublicViewKey  string `json:"publicViewKey"`
}

// Transfer is the change to one address caused by a transaction. Amount is negative
// for outgoing funds.
type Transfer struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// Transaction is a wallet transaction
type Transaction struct {
	Hash                  string     `json:"hash"`
	Fee                   uint64     `json:"fee"`
	BlockHeight           uint64     `json:"blockHeight"`
	Timestamp             uint64     `json:"timestamp"`
	PaymentID             string     `json:"paymentID"`
	UnlockTime            uint64     `json:"unlockTime"`
	IsCoinbaseTransaction bool       `json:"isCoinbaseTransaction"`
	Transfers             []Transfer `json:"transfers"`
}

// Destination is a payee and an amount in atomic units
type Destination struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// BasicTransfer pays one destination with wallet defaults for everything else
type BasicTransfer struct {
	Destination string `json:"destination"`
	Amount      uint64 `json:"amount"`
	PaymentID   string `json:"paymentID,omitempty"`
}

// AdvancedTransfer controls every parameter of a transaction. Nil pointers and empty
// strings leave the choice to the wallet, after the client defaults are applied.
type AdvancedTransfer struct {
	Destinations    []Destination `json:"destinations"`
	Mixin           *uint64       `json:"mixin,omitempty"`
	Fee             *uint64       `json:"fee,omitempty"`
	FeePerByte      *float64      `json:"feePerByte,omitempty"`
	SourceAddresses []string      `json:"sourceAddresses,omitempty"`
	PaymentID       string        `json:"paymentID,omitempty"`
	ChangeAddress   string        `json:"changeAddress,omitempty"`
	UnlockTime      *uint64       `json:"unlockTime,omitempty"`
	Extra           string        `json:"extra,omitempty"`
}

// SendResult is returned by the send and prepare calls. Prepared transactions are not
// relayed until SendPrepared is called with their hash.
type SendResult struct {
	TransactionHash  string `json:"transactionHash"`
	Fee              uint64 `json:"fee"`
	RelayedToNetwork bool   `json:"relayedToNetwork"`
}

// FusionAdvanced controls a fusion transaction
type FusionAdvanced struct {
	Destination     string   `json:"destination,omitempty"`
	Mixin           *uint64  `json:"mixin,omitempty"`
	SourceAddresses []string `json:"sourceAddresses,omitempty"`
}
