package daemon

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bardlex/turtlego/pkg/errors"
	"github.com/bardlex/turtlego/pkg/transport"
)

// Node is the part of the daemon API both generations share, in the shape of the
// current API. Services that only need these calls can run against either release.
type Node interface {
	Endpoint() string
	Version(ctx context.Context) (Version, error)
	Height(ctx context.Context) (*Height, error)
	Peers(ctx context.Context) (*Peers, error)
	Fee(ctx context.Context) (*Fee, error)
	BlockCount(ctx context.Context) (uint64, error)
	LastBlock(ctx context.Context) (*BlockHeader, error)
	BlockTemplate(ctx context.Context, address string, reserveSize int) (*BlockTemplate, error)
	SubmitBlock(ctx context.Context, blob string) (string, error)
	SubmitTransaction(ctx context.Context, blob string) (string, error)
	TransactionsStatus(ctx context.Context, hashes []string) (*TransactionsStatus, error)
}

// LegacyNode adapts a LegacyClient to Node
type LegacyNode struct {
	client *LegacyClient
}

var _ Node = (*LegacyNode)(nil)

// NewLegacyNode wraps client
func NewLegacyNode(client *LegacyClient) *LegacyNode {
	return &LegacyNode{client: client}
}

// Client returns the wrapped legacy client for calls outside Node
func (n *LegacyNode) Client() *LegacyClient {
	return n.client
}

// Endpoint returns the daemon base URL
func (n *LegacyNode) Endpoint() string {
	return n.client.Endpoint()
}

// Version parses the version string of /info
func (n *LegacyNode) Version(ctx context.Context) (Version, error) {
	info, err := n.client.Info(ctx)
	if err != nil {
		return Version{}, err
	}
	return info.ParsedVersion()
}

// Height returns the local and network heights
func (n *LegacyNode) Height(ctx context.Context) (*Height, error) {
	h, err := n.client.Height(ctx)
	if err != nil {
		return nil, err
	}
	return &Height{Height: h.Height, NetworkHeight: h.NetworkHeight}, nil
}

// Peers returns the peer lists
func (n *LegacyNode) Peers(ctx context.Context) (*Peers, error) {
	p, err := n.client.Peers(ctx)
	if err != nil {
		return nil, err
	}
	return &Peers{Peers: p.Peers, GreyPeers: p.GrayPeers}, nil
}

// Fee returns the node operator fee
func (n *LegacyNode) Fee(ctx context.Context) (*Fee, error) {
	f, err := n.client.Fee(ctx)
	if err != nil {
		return nil, err
	}
	return &Fee{Address: f.Address, Amount: f.Amount}, nil
}

// BlockCount returns the number of blocks in the local chain
func (n *LegacyNode) BlockCount(ctx context.Context) (uint64, error) {
	return n.client.BlockCount(ctx)
}

// LastBlock returns the header of the chain tip
func (n *LegacyNode) LastBlock(ctx context.Context) (*BlockHeader, error) {
	h, err := n.client.LastBlockHeader(ctx)
	if err != nil {
		return nil, err
	}
	return h.toHeader(), nil
}

// BlockTemplate requests a block template paying to address
func (n *LegacyNode) BlockTemplate(ctx context.Context, address string, reserveSize int) (*BlockTemplate, error) {
	t, err := n.client.BlockTemplate(ctx, address, reserveSize)
	if err != nil {
		return nil, err
	}
	return &BlockTemplate{
		Blob:           t.Blob,
		Difficulty:     t.Difficulty,
		Height:         t.Height,
		ReservedOffset: t.ReservedOffset,
	}, nil
}

// SubmitBlock submits a mined block. The legacy API does not report the block hash,
// so the returned hash is always empty.
func (n *LegacyNode) SubmitBlock(ctx context.Context, blob string) (string, error) {
	return "", n.client.SubmitBlock(ctx, blob)
}

// SubmitTransaction relays a transaction. The legacy API does not report the
// transaction hash, so the returned hash is always empty.
func (n *LegacyNode) SubmitTransaction(ctx context.Context, blob string) (string, error) {
	return "", n.client.SendRawTransaction(ctx, blob)
}

// TransactionsStatus reports for each hash whether it is in a block, in the pool or unknown
func (n *LegacyNode) TransactionsStatus(ctx context.Context, hashes []string) (*TransactionsStatus, error) {
	s, err := n.client.TransactionStatus(ctx, hashes)
	if err != nil {
		return nil, err
	}
	return &TransactionsStatus{
		InBlock:  s.TransactionsInBlock,
		InPool:   s.TransactionsInPool,
		NotFound: s.TransactionsUnknown,
	}, nil
}

func (h *LegacyBlockHeader) toHeader() *BlockHeader {
	return &BlockHeader{
		Hash:             h.Hash,
		PrevHash:         h.PrevHash,
		Height:           h.Height,
		Depth:            h.Depth,
		Difficulty:       h.Difficulty,
		Timestamp:        h.Timestamp,
		Nonce:            h.Nonce,
		Reward:           h.Reward,
		MajorVersion:     h.MajorVersion,
		MinorVersion:     h.MinorVersion,
		Orphan:           h.OrphanStatus,
		Size:             h.BlockSize,
		TransactionCount: h.NumTxes,
	}
}

// Detect asks the daemon at cfg for its version and returns a Node for the matching
// API: the current client for 1.0 and later, a LegacyNode otherwise.
//
// Parameters:
//   - ctx: Context for request cancellation and timeout
//   - cfg: Daemon connection settings
//   - opts: Transport options passed to the returned client
//
// Returns:
//   - Node: *Client or *LegacyNode
//   - Version: The reported version
//   - error: Any transport error, or a protocol error for an unrecognisable /info
func Detect(ctx context.Context, cfg transport.Config, opts ...transport.Option) (Node, Version, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	probe, err := transport.New(cfg, append([]transport.Option{transport.WithName("detect")}, opts...)...)
	if err != nil {
		return nil, Version{}, err
	}

	var info struct {
		Version json.RawMessage `json:"version"`
	}
	err = probe.Do(ctx, transport.Call{Operation: "info", Method: http.MethodGet, Path: "/info", Out: &info})
	if err != nil {
		return nil, Version{}, err
	}

	version, err := decodeVersion(info.Version)
	if err != nil {
		return nil, Version{}, err
	}

	if version.IsLegacy() {
		legacy, err := NewLegacyClient(cfg, opts...)
		if err != nil {
			return nil, Version{}, err
		}
		return NewLegacyNode(legacy), version, nil
	}

	current, err := NewClient(cfg, opts...)
	if err != nil {
		return nil, Version{}, err
	}
	return current, version, nil
}

// decodeVersion accepts the current {"major","minor","patch"} object and the legacy
// "major.minor.patch" string
func decodeVersion(raw json.RawMessage) (Version, error) {
	if len(raw) == 0 {
		return Version{}, errors.New(errors.ErrorTypeProtocol, "detect", "/info has no version")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseVersion(s)
	}

	var v Version
	if err := json.Unmarshal(raw, &v); err != nil {
		return Version{}, errors.Wrap(err, errors.ErrorTypeProtocol, "detect", "unrecognised version field")
	}
	return v, nil
}
