package daemon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bardlex/turtlego/pkg/errors"
)

// Version is a daemon release number
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// String renders major.minor.patch
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsLegacy reports whether the daemon speaks the pre-1.0 API
func (v Version) IsLegacy() bool {
	return v.Major < 1
}

// ParseVersion parses "major.minor.patch". Missing trailing parts are zero and a
// suffix after the patch digits ("-beta") is ignored.
func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.SplitN(strings.TrimSpace(s), ".", 3)
	dst := []*int{&v.Major, &v.Minor, &v.Patch}

	for i, part := range parts {
		if i == len(dst)-1 {
			if end := strings.IndexFunc(part, func(r rune) bool { return r < '0' || r > '9' }); end > 0 {
				part = part[:end]
			}
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, errors.New(errors.ErrorTypeProtocol, "parse_version", "malformed version").
				WithContext("version", s)
		}
		*dst[i] = n
	}
	return v, nil
}

// Info is the node summary returned by GET /info
type Info struct {
	AlternateBlockCount  uint64   `json:"alternateBlockCount"`
	Difficulty           uint64   `json:"difficulty"`
	Explorer             bool     `json:"explorer"`
	GreyPeerlistSize     uint64   `json:"greyPeerlistSize"`
	Hashrate             uint64   `json:"hashrate"`
	Height               uint64   `json:"height"`
	IncomingConnections  uint64   `json:"incomingConnections"`
	LastBlockIndex       uint64   `json:"lastBlockIndex"`
	MajorVersion         uint64   `json:"majorVersion"`
	MinorVersion         uint64   `json:"minorVersion"`
	NetworkHeight        uint64   `json:"networkHeight"`
	OutgoingConnections  uint64   `json:"outgoingConnections"`
	StartTime            int64    `json:"startTime"`
	SupportedHeight      uint64   `json:"supportedHeight"`
	Synced               bool     `json:"synced"`
	TransactionsPoolSize uint64   `json:"transactionsPoolSize"`
	TransactionsSize     uint64   `json:"transactionsSize"`
	UpgradeHeights       []uint64 `json:"upgradeHeights"`
	Version              Version  `json:"version"`
	WhitePeerlistSize    uint64   `json:"whitePeerlistSize"`
}

// Height is the local and network chain height
type Height struct {
	Height        uint64 `json:"height"`
	NetworkHeight uint64 `json:"networkHeight"`
}

// Peers lists connected and known peers as host:port
type Peers struct {
	Peers     []string `json:"peers"`
	GreyPeers []string `json:"greyPeers"`
}

// Fee is the node operator fee
type Fee struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// BlockHeader is the header part of a block
type BlockHeader struct {
	Hash         string `json:"hash"`
	PrevHash     string `json:"prevHash"`
	Height       uint64 `json:"height"`
	Depth        uint64 `json:"depth"`
	Difficulty   uint64 `json:"difficulty"`
	Timestamp    uint64 `json:"timestamp"`
	Nonce        uint64 `json:"nonce"`
	Reward       uint64 `json:"reward"`
	BaseReward   uint64 `json:"baseReward"`
	MajorVersion uint64 `json:"majorVersion"`
	MinorVersion uint64 `json:"minorVersion"`
	Orphan       bool   `json:"orphan"`
	Size         uint64 `json:"size"`
	SizeMedian   uint64 `json:"sizeMedian"`

	TotalFeeAmount             uint64 `json:"totalFeeAmount"`
	TransactionCount           uint64 `json:"transactionCount"`
	TransactionsCumulativeSize uint64 `json:"transactionsCumulativeSize"`
}

// TransactionSummary is the short form of a transaction inside a block or the pool
type TransactionSummary struct {
	Hash      string `json:"hash"`
	Fee       uint64 `json:"fee"`
	AmountOut uint64 `json:"amountOut"`
	Size      uint64 `json:"size"`
}

// Block is a block with its transaction summaries
type Block struct {
	BlockHeader
	Transactions []TransactionSummary `json:"transactions"`
}

// RawBlock is a hex block blob with its hex transaction blobs
type RawBlock struct {
	Blob         string   `json:"blob"`
	Transactions []string `json:"transactions"`
}

// BlockTemplate is a candidate block for external mining
type BlockTemplate struct {
	Blob           string `json:"blob"`
	Difficulty     uint64 `json:"difficulty"`
	Height         uint64 `json:"height"`
	ReservedOffset uint64 `json:"reservedOffset"`
}

// TransactionOutput is a single output of a transaction prefix
type TransactionOutput struct {
	Amount uint64 `json:"amount"`
	Key    string `json:"key"`
}

// TransactionPrefix is the unsigned part of a transaction. Inputs keep their raw form
// because coinbase and key inputs differ in shape.
type TransactionPrefix struct {
	Version    uint64              `json:"version"`
	UnlockTime uint64              `json:"unlockTime"`
	Extra      string              `json:"extra"`
	Inputs     []json.RawMessage   `json:"inputs"`
	Outputs    []TransactionOutput `json:"outputs"`
}

// TransactionMeta is derived data about a transaction
type TransactionMeta struct {
	AmountOut uint64 `json:"amountOut"`
	Fee       uint64 `json:"fee"`
	PaymentID string `json:"paymentId"`
	PublicKey string `json:"publicKey"`
	RingSize  uint64 `json:"ringSize"`
	Size      uint64 `json:"size"`
}

// Transaction is the explorer view of a transaction
type Transaction struct {
	Block  BlockHeader       `json:"block"`
	Prefix TransactionPrefix `json:"prefix"`
	Meta   TransactionMeta   `json:"meta"`
}

// PoolChanges is the pool delta relative to the caller's view
type PoolChanges struct {
	Added   []json.RawMessage `json:"added"`
	Deleted []string          `json:"deleted"`
	Synced  bool              `json:"synced"`
}

// TransactionsStatus partitions transaction hashes by where the daemon found them
type TransactionsStatus struct {
	InBlock  []string `json:"inBlock"`
	InPool   []string `json:"inPool"`
	NotFound []string `json:"notFound"`
}

// TransactionIndexes are the global output indexes of one transaction
type TransactionIndexes struct {
	Hash    string   `json:"hash"`
	Indexes []uint64 `json:"indexes"`
}

// RandomOutput is one decoy candidate
type RandomOutput struct {
	Index uint64 `json:"index"`
	Key   string `json:"key"`
}

// RandomOutputs are the decoys picked for one amount
type RandomOutputs struct {
	Amount  uint64         `json:"amount"`
	Outputs []RandomOutput `json:"outputs"`
}

// TopBlock identifies the daemon's tip
type TopBlock struct {
	Hash   string `json:"hash"`
	Height uint64 `json:"height"`
}

// SyncRequest pages through the chain. Zero values ask for the daemon's defaults
// except Count, which defaults to DefaultSyncCount.
type SyncRequest struct {
	Checkpoints              []string `json:"checkpoints"`
	Height                   uint64   `json:"height"`
	Timestamp                uint64   `json:"timestamp"`
	SkipCoinbaseTransactions bool     `json:"skipCoinbaseTransactions"`
	Count                    uint64   `json:"count"`
}

// SyncBlock is a block as returned by POST /sync. Transactions keep their raw form.
type SyncBlock struct {
	Hash         string            `json:"hash"`
	Height       uint64            `json:"height"`
	Timestamp    uint64            `json:"timestamp"`
	CoinbaseTX   json.RawMessage   `json:"coinbaseTX,omitempty"`
	Transactions []json.RawMessage `json:"transactions"`
}

// SyncResult is one page of POST /sync
type SyncResult struct {
	Blocks   []SyncBlock `json:"blocks"`
	Synced   bool        `json:"synced"`
	TopBlock *TopBlock   `json:"topBlock,omitempty"`
}

// RawSyncResult is one page of POST /sync/raw
type RawSyncResult struct {
	Blocks   []RawBlock `json:"blocks"`
	Synced   bool       `json:"synced"`
	TopBlock *TopBlock  `json:"topBlock,omitempty"`
}
