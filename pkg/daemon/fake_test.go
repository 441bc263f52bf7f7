package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/bardlex/turtlego/pkg/transport"
)

const (
	genesisHash     = "7fb97df81221dd1366051b2d0bc7f49c66c22ac4431d879c895b06d66ef66f4c"
	zeroHash        = "0000000000000000000000000000000000000000000000000000000000000000"
	knownTxHash     = "bdcbc8162dc1949793c1c6d0656ac60a6e5a3c505969b18bdfa10360d1c2909d"
	unknownTxHash   = "bdcbc8162dc1949793c1c6d0656ac60a6e5a3c505969b18bdfa10360d1c2909c"
	txBlockHash     = "ea531b1af3da7dc71a7f7a304076e74b526655bc2daf83d9b5d69f1bc4555af0"
	txPublicKey     = "7d812f35cfff8bc6b5d118944d6476c73495f5c2de3f6a923f3510661646ac9d"
	minerAddress    = "TRTLv1pacKFJk9QgSmzk2LJWn14JGmTKzReFLz1RgY3K9Ryn7783RDT2TretzfYdck5GMCGzXTuwKfePWQYViNs4avKpnUbrwfQ"
	genesisBlob     = "010000000000000000000000000000000000000000000000000000000000000000000046000000010a01ff000188f3b501029b2e4c0281c0b02e7c53291a94d1d0cbff8883f8024f5142ee494ffbbd088071210142694232c5b04151d9e4c27d31ec7a68ea568b19488cfcb422659a07a0e44dd500"
	staleBlockBlob  = "0400850d6b0dcd9aee8adc27ddf2c0102cc7985d006bd7ca057d09313c6afe9f34580000829de8e105"
	staleTxBlob     = "010001026404d48008fff717d2872294b71e51b8304ed711c0fe240a2614610cc0380a5d0b8b13e2652e6c062fbb"
	headersPerQuery = 31
)

// fakeDaemon serves canned TurtleCoind responses for both API generations
type fakeDaemon struct {
	*httptest.Server

	requests atomic.Int64

	templateDifficulty atomic.Uint64
	shortDecoys        atomic.Bool
	// params of the last JSON-RPC call, as raw JSON
	lastParams atomic.Value
}

func newFakeDaemon(t *testing.T, legacy bool) *fakeDaemon {
	t.Helper()

	f := &fakeDaemon{}
	f.templateDifficulty.Store(12345)
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.requests.Add(1)
			next.ServeHTTP(w, req)
		})
	})

	if legacy {
		f.legacyRoutes(r)
	} else {
		f.currentRoutes(r)
	}

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeDaemon) config(t *testing.T) transport.Config {
	t.Helper()
	u, err := url.Parse(f.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	return transport.Config{Host: host, Port: port, Timeout: 2 * time.Second}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func daemonError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": code, "message": msg}})
}

func genesisHeader() map[string]any {
	return map[string]any{
		"hash":         genesisHash,
		"prevHash":     zeroHash,
		"height":       0,
		"depth":        100,
		"difficulty":   1,
		"majorVersion": 1,
		"timestamp":    0,
	}
}

func (f *fakeDaemon) currentRoutes(r *mux.Router) {
	r.HandleFunc("/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{
			"version":       map[string]int{"major": 1, "minor": 1, "patch": 0},
			"explorer":      true,
			"synced":        true,
			"height":        100,
			"networkHeight": 100,
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/height", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"height": 100, "networkHeight": 101})
	}).Methods(http.MethodGet)

	r.HandleFunc("/peers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"peers": []string{"1.2.3.4:11897"}, "greyPeers": []string{}})
	}).Methods(http.MethodGet)

	r.HandleFunc("/fee", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"address": "", "amount": 0})
	}).Methods(http.MethodGet)

	r.HandleFunc("/block/count", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"count": 100})
	}).Methods(http.MethodGet)

	r.HandleFunc("/block/last", func(w http.ResponseWriter, _ *http.Request) {
		h := genesisHeader()
		h["depth"] = 0
		h["height"] = 99
		writeJSON(w, 200, h)
	}).Methods(http.MethodGet)

	r.HandleFunc("/block/headers/{height:[0-9]+}", func(w http.ResponseWriter, _ *http.Request) {
		headers := make([]map[string]any, headersPerQuery)
		for i := range headers {
			headers[i] = genesisHeader()
		}
		writeJSON(w, 200, headers)
	}).Methods(http.MethodGet)

	r.HandleFunc("/block/template", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Address     string `json:"address"`
			ReserveSize int    `json:"reserveSize"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Address == "" {
			daemonError(w, 400, 1, "invalid request")
			return
		}
		writeJSON(w, 201, map[string]any{
			"blob":           genesisBlob,
			"difficulty":     f.templateDifficulty.Load(),
			"height":         100,
			"reservedOffset": 130,
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/block", func(w http.ResponseWriter, req *http.Request) {
		var blob string
		if err := json.NewDecoder(req.Body).Decode(&blob); err != nil {
			daemonError(w, 400, 1, "body must be a JSON string")
			return
		}
		daemonError(w, 400, 7, "Block was not accepted: orphaned")
	}).Methods(http.MethodPost)

	r.HandleFunc("/block/{id}/raw", func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		if id != genesisHash && id != "0" {
			daemonError(w, 404, 2, "block not found")
			return
		}
		writeJSON(w, 200, map[string]any{"blob": genesisBlob, "transactions": []string{}})
	}).Methods(http.MethodGet)

	r.HandleFunc("/block/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		if id != genesisHash && id != "0" {
			daemonError(w, 404, 2, "block not found")
			return
		}
		b := genesisHeader()
		b["transactions"] = []map[string]any{{"hash": knownTxHash, "fee": 0, "amountOut": 100, "size": 90}}
		writeJSON(w, 200, b)
	}).Methods(http.MethodGet)

	r.HandleFunc("/transaction", func(w http.ResponseWriter, _ *http.Request) {
		daemonError(w, 400, 8, "Transaction was not accepted: key image already spent")
	}).Methods(http.MethodPost)

	r.HandleFunc("/transaction/pool", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, []any{})
	}).Methods(http.MethodGet)

	r.HandleFunc("/transaction/pool/raw", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, []string{})
	}).Methods(http.MethodGet)

	r.HandleFunc("/transaction/pool/delta", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"added": []any{}, "deleted": []string{}, "synced": false})
	}).Methods(http.MethodPost)

	r.HandleFunc("/transaction/status", func(w http.ResponseWriter, req *http.Request) {
		var hashes []string
		_ = json.NewDecoder(req.Body).Decode(&hashes)
		status := map[string][]string{"inBlock": {}, "inPool": {}, "notFound": {}}
		for _, h := range hashes {
			if h == knownTxHash {
				status["inBlock"] = append(status["inBlock"], h)
			} else {
				status["notFound"] = append(status["notFound"], h)
			}
		}
		writeJSON(w, 200, status)
	}).Methods(http.MethodPost)

	r.HandleFunc("/transaction/{hash}/raw", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, staleTxBlob)
	}).Methods(http.MethodGet)

	r.HandleFunc("/transaction/{hash}", func(w http.ResponseWriter, req *http.Request) {
		if mux.Vars(req)["hash"] != knownTxHash {
			daemonError(w, 404, 3, "transaction not found")
			return
		}
		writeJSON(w, 200, map[string]any{
			"block":  map[string]any{"hash": txBlockHash, "height": 10},
			"prefix": map[string]any{"version": 1, "unlockTime": 50, "inputs": []any{map[string]any{"height": 10}}},
			"meta":   map[string]any{"publicKey": txPublicKey, "ringSize": 0},
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/indexes/{start:[0-9]+}/{end:[0-9]+}", func(w http.ResponseWriter, req *http.Request) {
		start, _ := strconv.Atoi(mux.Vars(req)["start"])
		end, _ := strconv.Atoi(mux.Vars(req)["end"])
		out := make([]map[string]any, 0, end-start+1)
		for h := start; h <= end; h++ {
			out = append(out, map[string]any{"hash": fmt.Sprintf("%064x", h), "indexes": []int{h}})
		}
		writeJSON(w, 200, out)
	}).Methods(http.MethodGet)

	r.HandleFunc("/indexes/random", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Amounts []uint64 `json:"amounts"`
			Count   int      `json:"count"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		n := body.Count
		if f.shortDecoys.Load() {
			n--
		}
		out := make([]map[string]any, len(body.Amounts))
		for i, a := range body.Amounts {
			outputs := make([]map[string]any, n)
			for j := range outputs {
				outputs[j] = map[string]any{"index": j, "key": zeroHash}
			}
			out[i] = map[string]any{"amount": a, "outputs": outputs}
		}
		writeJSON(w, 200, out)
	}).Methods(http.MethodPost)

	syncHandler := func(raw bool) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			var body SyncRequest
			_ = json.NewDecoder(req.Body).Decode(&body)
			blocks := make([]map[string]any, body.Count)
			for i := range blocks {
				if raw {
					blocks[i] = map[string]any{"blob": genesisBlob, "transactions": []string{}}
				} else {
					blocks[i] = map[string]any{"hash": genesisHash, "height": body.Height + uint64(i), "transactions": []any{}}
				}
			}
			writeJSON(w, 200, map[string]any{
				"blocks":   blocks,
				"synced":   false,
				"topBlock": map[string]any{"hash": genesisHash, "height": 100},
			})
		}
	}
	r.HandleFunc("/sync", syncHandler(false)).Methods(http.MethodPost)
	r.HandleFunc("/sync/raw", syncHandler(true)).Methods(http.MethodPost)
}

func legacyHeader() map[string]any {
	return map[string]any{
		"hash":          genesisHash,
		"prev_hash":     zeroHash,
		"height":        0,
		"depth":         100,
		"difficulty":    1,
		"major_version": 1,
		"block_size":    80,
	}
}

func (f *fakeDaemon) legacyRoutes(r *mux.Router) {
	ok := func(m map[string]any) map[string]any {
		m["status"] = "OK"
		return m
	}

	r.HandleFunc("/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, ok(map[string]any{"version": "0.28.3", "height": 100, "network_height": 100, "synced": true}))
	}).Methods(http.MethodGet)

	r.HandleFunc("/height", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, ok(map[string]any{"height": 100, "network_height": 101}))
	}).Methods(http.MethodGet)

	r.HandleFunc("/peers", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, ok(map[string]any{"peers": []string{"1.2.3.4:11897"}, "gray_peers": []string{"5.6.7.8:11897"}}))
	}).Methods(http.MethodGet)

	r.HandleFunc("/fee", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, ok(map[string]any{"address": "", "amount": 0}))
	}).Methods(http.MethodGet)

	r.HandleFunc("/json_rpc", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			JSONRPC string          `json:"jsonrpc"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.JSONRPC != "2.0" {
			writeJSON(w, 200, map[string]any{"jsonrpc": "2.0", "id": 1, "error": map[string]any{"code": -32600, "message": "Invalid Request"}})
			return
		}
		f.lastParams.Store(string(body.Params))

		result := func(v map[string]any) {
			writeJSON(w, 200, map[string]any{"jsonrpc": "2.0", "id": 1, "result": ok(v)})
		}
		rpcErr := func(code int, msg string) {
			writeJSON(w, 200, map[string]any{"jsonrpc": "2.0", "id": 1, "error": map[string]any{"code": code, "message": msg}})
		}

		switch body.Method {
		case "getblockcount":
			result(map[string]any{"count": 100})
		case "f_block_json":
			b := legacyHeader()
			b["transactions"] = []map[string]any{{"hash": knownTxHash, "amount_out": 100}}
			result(map[string]any{"block": b})
		case "getblockheaderbyhash", "getblockheaderbyheight":
			result(map[string]any{"block_header": legacyHeader()})
		case "getlastblockheader":
			h := legacyHeader()
			h["depth"] = 0
			result(map[string]any{"block_header": h})
		case "f_blocks_list_json":
			blocks := make([]map[string]any, headersPerQuery)
			for i := range blocks {
				blocks[i] = map[string]any{"hash": genesisHash, "height": i, "tx_count": 1}
			}
			result(map[string]any{"blocks": blocks})
		case "getblocktemplate":
			result(map[string]any{"blocktemplate_blob": genesisBlob, "difficulty": f.templateDifficulty.Load(), "height": 100, "reserved_offset": 130})
		case "submitblock":
			var params []string
			if err := json.Unmarshal(body.Params, &params); err != nil || len(params) != 1 {
				rpcErr(-1, "Wrong param")
				return
			}
			rpcErr(-7, "Block not accepted")
		case "f_transaction_json":
			result(map[string]any{
				"block":     map[string]any{"hash": txBlockHash, "height": 10},
				"tx":        map[string]any{"version": 1},
				"txDetails": map[string]any{"hash": knownTxHash},
			})
		case "f_on_transactions_pool_json":
			result(map[string]any{"transactions": []any{}})
		default:
			rpcErr(-32601, "Method not found")
		}
	}).Methods(http.MethodPost)

	r.HandleFunc("/queryblocksdetailed", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			BlockCount int `json:"blockCount"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		blocks := make([]map[string]any, body.BlockCount)
		for i := range blocks {
			blocks[i] = map[string]any{"hash": genesisHash, "index": i, "alreadyGeneratedCoins": "0"}
		}
		writeJSON(w, 200, ok(map[string]any{"blocks": blocks, "currentHeight": 100}))
	}).Methods(http.MethodPost)

	r.HandleFunc("/queryblockslite", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, ok(map[string]any{"items": []map[string]any{{"hash": genesisHash, "block": genesisBlob}}}))
	}).Methods(http.MethodPost)

	r.HandleFunc("/get_o_indexes.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, ok(map[string]any{"o_indexes": []int{1, 2, 3, 4, 5, 6}}))
	}).Methods(http.MethodPost)

	r.HandleFunc("/get_global_indexes_for_range", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			StartHeight int `json:"startHeight"`
			EndHeight   int `json:"endHeight"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		out := make([]map[string]any, 0, body.EndHeight-body.StartHeight)
		for h := body.StartHeight; h < body.EndHeight; h++ {
			out = append(out, map[string]any{"key": fmt.Sprintf("%064x", h), "value": []int{h}})
		}
		writeJSON(w, 200, ok(map[string]any{"indexes": out}))
	}).Methods(http.MethodPost)

	r.HandleFunc("/get_pool_changes_lite", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, ok(map[string]any{"addedTxs": []any{}, "deletedTxsIds": []string{}, "isTailBlockActual": false}))
	}).Methods(http.MethodPost)

	r.HandleFunc("/getrandom_outs", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Amounts   []uint64 `json:"amounts"`
			OutsCount int      `json:"outs_count"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		n := body.OutsCount
		if f.shortDecoys.Load() {
			n = 0
		}
		outs := make([]map[string]any, len(body.Amounts))
		for i, a := range body.Amounts {
			items := make([]map[string]any, n)
			for j := range items {
				items[j] = map[string]any{"global_amount_index": j, "out_key": zeroHash}
			}
			outs[i] = map[string]any{"amount": a, "outs": items}
		}
		writeJSON(w, 200, ok(map[string]any{"outs": outs}))
	}).Methods(http.MethodPost)

	r.HandleFunc("/getrawblocks", func(w http.ResponseWriter, req *http.Request) {
		var body LegacySyncRequest
		_ = json.NewDecoder(req.Body).Decode(&body)
		items := make([]map[string]any, body.BlockCount)
		for i := range items {
			items[i] = map[string]any{"block": genesisBlob, "transactions": []string{}}
		}
		writeJSON(w, 200, ok(map[string]any{"items": items, "synced": false}))
	}).Methods(http.MethodPost)

	r.HandleFunc("/getwalletsyncdata", func(w http.ResponseWriter, req *http.Request) {
		var body LegacySyncRequest
		_ = json.NewDecoder(req.Body).Decode(&body)
		items := make([]map[string]any, body.BlockCount)
		for i := range items {
			items[i] = map[string]any{"blockHash": genesisHash, "blockHeight": body.StartHeight + uint64(i), "transactions": []any{}}
		}
		writeJSON(w, 200, ok(map[string]any{"items": items, "synced": false, "topBlock": map[string]any{"hash": genesisHash, "height": 100}}))
	}).Methods(http.MethodPost)

	r.HandleFunc("/sendrawtransaction", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "Failed", "error": "Transaction was rejected"})
	}).Methods(http.MethodPost)

	r.HandleFunc("/get_transactions_status", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			TransactionHashes []string `json:"transactionHashes"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		inBlock, unknown := []string{}, []string{}
		for _, h := range body.TransactionHashes {
			if h == knownTxHash {
				inBlock = append(inBlock, h)
			} else {
				unknown = append(unknown, h)
			}
		}
		writeJSON(w, 200, ok(map[string]any{
			"transactionsInBlock": inBlock,
			"transactionsInPool":  []string{},
			"transactionsUnknown": unknown,
		}))
	}).Methods(http.MethodPost)
}
