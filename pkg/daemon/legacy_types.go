package daemon

import "encoding/json"

// Field names in this file follow the pre-1.0 daemon, which mixes snake_case and
// camelCase between endpoints.

// LegacyInfo is GET /info on a pre-1.0 daemon
type LegacyInfo struct {
	AltBlocksCount           uint64   `json:"alt_blocks_count"`
	Difficulty               uint64   `json:"difficulty"`
	GreyPeerlistSize         uint64   `json:"grey_peerlist_size"`
	Hashrate                 uint64   `json:"hashrate"`
	Height                   uint64   `json:"height"`
	IncomingConnectionsCount uint64   `json:"incoming_connections_count"`
	LastKnownBlockIndex      uint64   `json:"last_known_block_index"`
	MajorVersion             uint64   `json:"major_version"`
	MinorVersion             uint64   `json:"minor_version"`
	NetworkHeight            uint64   `json:"network_height"`
	OutgoingConnectionsCount uint64   `json:"outgoing_connections_count"`
	StartTime                int64    `json:"start_time"`
	Status                   string   `json:"status"`
	SupportedHeight          uint64   `json:"supported_height"`
	Synced                   bool     `json:"synced"`
	Testnet                  bool     `json:"testnet"`
	TxCount                  uint64   `json:"tx_count"`
	TxPoolSize               uint64   `json:"tx_pool_size"`
	UpgradeHeights           []uint64 `json:"upgrade_heights"`
	Version                  string   `json:"version"`
	WhitePeerlistSize        uint64   `json:"white_peerlist_size"`
	IsCacheAPI               bool     `json:"isCacheApi"`
}

// ParsedVersion parses the version string
func (i *LegacyInfo) ParsedVersion() (Version, error) {
	return ParseVersion(i.Version)
}

// LegacyHeight is GET /height on a pre-1.0 daemon
type LegacyHeight struct {
	Height        uint64 `json:"height"`
	NetworkHeight uint64 `json:"network_height"`
	Status        string `json:"status"`
}

// LegacyPeers is GET /peers on a pre-1.0 daemon
type LegacyPeers struct {
	Peers     []string `json:"peers"`
	GrayPeers []string `json:"gray_peers"`
	Status    string   `json:"status"`
}

// LegacyFee is GET /fee on a pre-1.0 daemon
type LegacyFee struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
	Status  string `json:"status"`
}

// LegacyBlockHeader is the block_header object of the getblockheader* methods
type LegacyBlockHeader struct {
	BlockSize    uint64 `json:"block_size"`
	Depth        uint64 `json:"depth"`
	Difficulty   uint64 `json:"difficulty"`
	Hash         string `json:"hash"`
	Height       uint64 `json:"height"`
	MajorVersion uint64 `json:"major_version"`
	MinorVersion uint64 `json:"minor_version"`
	Nonce        uint64 `json:"nonce"`
	NumTxes      uint64 `json:"num_txes"`
	OrphanStatus bool   `json:"orphan_status"`
	PrevHash     string `json:"prev_hash"`
	Reward       uint64 `json:"reward"`
	Timestamp    uint64 `json:"timestamp"`
}

// LegacyTransactionSummary is a transaction inside f_block_json or the pool
type LegacyTransactionSummary struct {
	AmountOut uint64 `json:"amount_out"`
	Fee       uint64 `json:"fee"`
	Hash      string `json:"hash"`
	Size      uint64 `json:"size"`
}

// LegacyBlock is the block object of f_block_json
type LegacyBlock struct {
	AlreadyGeneratedCoins        json.Number                `json:"alreadyGeneratedCoins"`
	AlreadyGeneratedTransactions uint64                     `json:"alreadyGeneratedTransactions"`
	BaseReward                   uint64                     `json:"baseReward"`
	BlockSize                    uint64                     `json:"blockSize"`
	Depth                        uint64                     `json:"depth"`
	Difficulty                   uint64                     `json:"difficulty"`
	EffectiveSizeMedian          uint64                     `json:"effectiveSizeMedian"`
	Hash                         string                     `json:"hash"`
	Height                       uint64                     `json:"height"`
	MajorVersion                 uint64                     `json:"major_version"`
	MinorVersion                 uint64                     `json:"minor_version"`
	Nonce                        uint64                     `json:"nonce"`
	OrphanStatus                 bool                       `json:"orphan_status"`
	Penalty                      float64                    `json:"penalty"`
	PrevHash                     string                     `json:"prev_hash"`
	Reward                       uint64                     `json:"reward"`
	SizeMedian                   uint64                     `json:"sizeMedian"`
	Timestamp                    uint64                     `json:"timestamp"`
	TotalFeeAmount               uint64                     `json:"totalFeeAmount"`
	Transactions                 []LegacyTransactionSummary `json:"transactions"`
	TransactionsCumulativeSize   uint64                     `json:"transactionsCumulativeSize"`
}

// LegacyShortHeader is an element of f_blocks_list_json
type LegacyShortHeader struct {
	CumulSize  uint64 `json:"cumul_size"`
	Difficulty uint64 `json:"difficulty"`
	Hash       string `json:"hash"`
	Height     uint64 `json:"height"`
	Timestamp  uint64 `json:"timestamp"`
	TxCount    uint64 `json:"tx_count"`
}

// LegacyBlockTemplate is the result of getblocktemplate
type LegacyBlockTemplate struct {
	Blob           string `json:"blocktemplate_blob"`
	Difficulty     uint64 `json:"difficulty"`
	Height         uint64 `json:"height"`
	ReservedOffset uint64 `json:"reserved_offset"`
	Status         string `json:"status"`
}

// LegacyTransactionDetails is the txDetails object of f_transaction_json
type LegacyTransactionDetails struct {
	AmountOut uint64 `json:"amount_out"`
	Fee       uint64 `json:"fee"`
	Hash      string `json:"hash"`
	Mixin     uint64 `json:"mixin"`
	PaymentID string `json:"paymentId"`
	Size      uint64 `json:"size"`
}

// LegacyTransaction is the result of f_transaction_json. Tx keeps its raw form.
type LegacyTransaction struct {
	Block     LegacyShortHeader        `json:"block"`
	Status    string                   `json:"status"`
	Tx        json.RawMessage          `json:"tx"`
	TxDetails LegacyTransactionDetails `json:"txDetails"`
}

// LegacyDetailedBlock is an element of /queryblocksdetailed
type LegacyDetailedBlock struct {
	AlreadyGeneratedCoins        json.Number       `json:"alreadyGeneratedCoins"`
	AlreadyGeneratedTransactions uint64            `json:"alreadyGeneratedTransactions"`
	BaseReward                   uint64            `json:"baseReward"`
	BlockSize                    uint64            `json:"blockSize"`
	Difficulty                   uint64            `json:"difficulty"`
	Hash                         string            `json:"hash"`
	Index                        uint64            `json:"index"`
	MajorVersion                 uint64            `json:"majorVersion"`
	MinorVersion                 uint64            `json:"minorVersion"`
	Nonce                        uint64            `json:"nonce"`
	PrevBlockHash                string            `json:"prevBlockHash"`
	Reward                       uint64            `json:"reward"`
	SizeMedian                   uint64            `json:"sizeMedian"`
	Timestamp                    uint64            `json:"timestamp"`
	TotalFeeAmount               uint64            `json:"totalFeeAmount"`
	Transactions                 []json.RawMessage `json:"transactions"`
	TransactionsCumulativeSize   uint64            `json:"transactionsCumulativeSize"`
}

// LegacyBlocksDetailed is the result of /queryblocksdetailed
type LegacyBlocksDetailed struct {
	Blocks        []LegacyDetailedBlock `json:"blocks"`
	CurrentHeight uint64                `json:"currentHeight"`
	FullOffset    uint64                `json:"fullOffset"`
	Status        string                `json:"status"`
}

// LegacyLiteBlock is an element of /queryblockslite
type LegacyLiteBlock struct {
	Block        string            `json:"block"`
	Hash         string            `json:"hash"`
	Transactions []json.RawMessage `json:"transactions"`
}

// LegacyBlocksLite is the result of /queryblockslite
type LegacyBlocksLite struct {
	CurrentHeight uint64            `json:"currentHeight"`
	FullOffset    uint64            `json:"fullOffset"`
	Items         []LegacyLiteBlock `json:"items"`
	StartHeight   uint64            `json:"startHeight"`
	Status        string            `json:"status"`
}

// LegacyIndexRange is an element of /get_global_indexes_for_range
type LegacyIndexRange struct {
	Key   string   `json:"key"`
	Value []uint64 `json:"value"`
}

// LegacyPoolChanges is the result of /get_pool_changes_lite
type LegacyPoolChanges struct {
	AddedTxs          []json.RawMessage `json:"addedTxs"`
	DeletedTxsIds     []string          `json:"deletedTxsIds"`
	IsTailBlockActual bool              `json:"isTailBlockActual"`
	Status            string            `json:"status"`
}

// LegacyOutput is one decoy candidate of /getrandom_outs
type LegacyOutput struct {
	GlobalAmountIndex uint64 `json:"global_amount_index"`
	OutKey            string `json:"out_key"`
}

// LegacyAmountOutputs are the decoys picked for one amount
type LegacyAmountOutputs struct {
	Amount uint64         `json:"amount"`
	Outs   []LegacyOutput `json:"outs"`
}

// LegacyRandomOutputs is the result of /getrandom_outs
type LegacyRandomOutputs struct {
	Outs   []LegacyAmountOutputs `json:"outs"`
	Status string                `json:"status"`
}

// LegacySyncRequest is the body of /getrawblocks and /getwalletsyncdata
type LegacySyncRequest struct {
	BlockHashCheckpoints     []string `json:"blockHashCheckpoints"`
	StartHeight              uint64   `json:"startHeight"`
	StartTimestamp           uint64   `json:"startTimestamp"`
	BlockCount               uint64   `json:"blockCount"`
	SkipCoinbaseTransactions bool     `json:"skipCoinbaseTransactions"`
}

// LegacyRawBlock is an element of /getrawblocks
type LegacyRawBlock struct {
	Block        string   `json:"block"`
	Transactions []string `json:"transactions"`
}

// LegacyRawBlocks is the result of /getrawblocks
type LegacyRawBlocks struct {
	Items    []LegacyRawBlock `json:"items"`
	Synced   bool             `json:"synced"`
	TopBlock *TopBlock        `json:"topBlock,omitempty"`
	Status   string           `json:"status"`
}

// LegacyWalletSyncBlock is an element of /getwalletsyncdata
type LegacyWalletSyncBlock struct {
	BlockHash      string            `json:"blockHash"`
	BlockHeight    uint64            `json:"blockHeight"`
	BlockTimestamp uint64            `json:"blockTimestamp"`
	CoinbaseTX     json.RawMessage   `json:"coinbaseTX,omitempty"`
	Transactions   []json.RawMessage `json:"transactions"`
}

// LegacyWalletSyncData is the result of /getwalletsyncdata
type LegacyWalletSyncData struct {
	Items    []LegacyWalletSyncBlock `json:"items"`
	Synced   bool                    `json:"synced"`
	TopBlock *TopBlock               `json:"topBlock,omitempty"`
	Status   string                  `json:"status"`
}

// LegacyTransactionsStatus is the result of /get_transactions_status
type LegacyTransactionsStatus struct {
	TransactionsInBlock []string `json:"transactionsInBlock"`
	TransactionsInPool  []string `json:"transactionsInPool"`
	TransactionsUnknown []string `json:"transactionsUnknown"`
	Status              string   `json:"status"`
}
