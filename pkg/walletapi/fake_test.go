package walletapi

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/bardlex/turtlego/pkg/address"
	"github.com/bardlex/turtlego/pkg/transport"
)

const (
	rpcPassword    = "password"
	primaryAddress = "TRTLuxQ2jXVeGrQNKFgAvGc4GifYEcrLC8UWEebLMjfNDt7JXZhAyzChdAthLTZHWYPKRgeimfJqzHBmvhwUzYgPAHML6SRXjoz"
	walletAddress  = "TRTLuwuGiuyWSkTTKQy8jGj4Dfr5typGJFoaHKzKGdu79S79x1Mk5biMnWUFXRtr9KFmDAQxUuh9j3WretzXaZzGVPyzRQSM8Wu"
	paymentID      = "1DE6276D400098659A6B065D6422959FB15C83A260D32E59095987E91FF01B05"
	integratedAddr = "TRTLuxjg8MT9Q9z9a1oMTmAa6thQCcjQV94iS9Cmu3tVAZzKnMkf5iAAQDKkcBhon" +
		"A9QgkMdUZe6tAQN9gQUkhqh9EsSQLNDoX9WSkTTKQy8jGj4Dfr5typGJFoaHKzKGdu79S79x1Mk5biMnWUFXRtr9KFmDAQx" +
		"Uuh9j3WretzXaZzGVPyzRUXFtwc"
	txHash = "bdcbc8162dc1949793c1c6d0656ac60a6e5a3c505969b18bdfa10360d1c2909d"
)

// fakeWallet is an in-memory wallet-api holding at most one open wallet
type fakeWallet struct {
	*httptest.Server

	requests atomic.Int64

	mu        sync.Mutex
	open      bool
	filename  string
	addresses []string
	node      NodeConfig
	lastBody  map[string]json.RawMessage
}

func newFakeWallet(t *testing.T) *fakeWallet {
	t.Helper()

	f := &fakeWallet{}
	r := mux.NewRouter()
	r.Use(f.countAndAuthenticate)

	r.HandleFunc("/wallet/create", f.openWallet(true)).Methods(http.MethodPost)
	r.HandleFunc("/wallet/open", f.openWallet(false)).Methods(http.MethodPost)
	r.HandleFunc("/wallet/import/key", f.openWallet(true)).Methods(http.MethodPost)
	r.HandleFunc("/wallet/import/seed", f.openWallet(true)).Methods(http.MethodPost)
	r.HandleFunc("/wallet/import/view", f.openWallet(true)).Methods(http.MethodPost)
	r.HandleFunc("/wallet", f.requireOpen(f.closeWallet)).Methods(http.MethodDelete)

	r.HandleFunc("/save", f.requireOpen(f.noContent)).Methods(http.MethodPut)
	r.HandleFunc("/reset", f.requireOpen(f.noContent)).Methods(http.MethodPut)
	r.HandleFunc("/node", f.requireOpen(f.getNode)).Methods(http.MethodGet)
	r.HandleFunc("/node", f.requireOpen(f.setNode)).Methods(http.MethodPut)
	r.HandleFunc("/status", f.requireOpen(f.status)).Methods(http.MethodGet)

	r.HandleFunc("/addresses", f.requireOpen(f.listAddresses)).Methods(http.MethodGet)
	r.HandleFunc("/addresses/primary", f.requireOpen(f.primary)).Methods(http.MethodGet)
	r.HandleFunc("/addresses/create", f.requireOpen(f.createAddress)).Methods(http.MethodPost)
	r.HandleFunc("/addresses/import", f.requireOpen(f.importAddress)).Methods(http.MethodPost)
	r.HandleFunc("/addresses/import/deterministic", f.requireOpen(f.importAddress)).Methods(http.MethodPost)
	r.HandleFunc("/addresses/import/view", f.requireOpen(f.importAddress)).Methods(http.MethodPost)
	r.HandleFunc("/addresses/validate", f.validate).Methods(http.MethodPost)
	r.HandleFunc("/addresses/{address}", f.requireOpen(f.deleteAddress)).Methods(http.MethodDelete)
	r.HandleFunc("/addresses/{address}/{paymentID}", f.integrate).Methods(http.MethodGet)

	r.HandleFunc("/balance", f.requireOpen(f.balance)).Methods(http.MethodGet)
	r.HandleFunc("/balance/{address}", f.requireOpen(f.balance)).Methods(http.MethodGet)
	r.HandleFunc("/balances", f.requireOpen(f.balances)).Methods(http.MethodGet)
	r.HandleFunc("/keys", f.requireOpen(f.keys)).Methods(http.MethodGet)
	r.HandleFunc("/keys/mnemonic/{address}", f.requireOpen(f.mnemonic)).Methods(http.MethodGet)
	r.HandleFunc("/keys/{address}", f.requireOpen(f.spendKeys)).Methods(http.MethodGet)

	r.PathPrefix("/transactions/send/").HandlerFunc(f.requireOpen(f.send)).Methods(http.MethodPost)
	r.PathPrefix("/transactions/prepare/").HandlerFunc(f.requireOpen(f.send)).Methods(http.MethodPost)
	r.HandleFunc("/transactions/prepared/{hash}", f.requireOpen(f.noContent)).Methods(http.MethodDelete)
	r.HandleFunc("/transactions/hash/{hash}", f.requireOpen(f.transactionByHash)).Methods(http.MethodGet)
	r.HandleFunc("/transactions/privatekey/{hash}", f.requireOpen(f.privateKey)).Methods(http.MethodGet)
	r.PathPrefix("/transactions").HandlerFunc(f.requireOpen(f.emptyTransactions)).Methods(http.MethodGet)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeWallet) config(t *testing.T, password string) Config {
	t.Helper()
	u, err := url.Parse(f.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	return Config{
		Config:   transport.Config{Host: host, Port: port, Timeout: 2 * time.Second},
		Password: password,
	}
}

func (f *fakeWallet) body() map[string]json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeWallet) countAndAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.Header.Get(APIKeyHeader) != rpcPassword {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var body map[string]json.RawMessage
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		f.mu.Lock()
		f.lastBody = body
		f.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func walletError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, map[string]any{"errorCode": code, "errorMessage": msg})
}

func (f *fakeWallet) requireOpen(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		open := f.open
		f.mu.Unlock()
		if !open {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		h(w, r)
	}
}

func (f *fakeWallet) noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (f *fakeWallet) openWallet(create bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := f.body()
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.open {
			walletError(w, http.StatusForbidden, 1, "a wallet is already open")
			return
		}

		var filename string
		_ = json.Unmarshal(body["filename"], &filename)
		if !create && filename != f.filename {
			walletError(w, http.StatusBadRequest, 2, "file not found")
			return
		}

		f.open = true
		f.filename = filename
		f.addresses = []string{primaryAddress}
		_ = json.Unmarshal(body["daemonHost"], &f.node.DaemonHost)
		_ = json.Unmarshal(body["daemonPort"], &f.node.DaemonPort)
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeWallet) closeWallet(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeWallet) getNode(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, 200, NodeInfo{NodeConfig: f.node})
}

func (f *fakeWallet) setNode(w http.ResponseWriter, _ *http.Request) {
	body := f.body()
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = json.Unmarshal(body["daemonHost"], &f.node.DaemonHost)
	_ = json.Unmarshal(body["daemonPort"], &f.node.DaemonPort)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeWallet) status(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, 200, Status{
		WalletBlockCount:      10,
		LocalDaemonBlockCount: 100,
		NetworkBlockCount:     100,
		PeerCount:             8,
		SubWalletCount:        uint64(len(f.addresses)),
	})
}

func (f *fakeWallet) listAddresses(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, 200, map[string]any{"addresses": f.addresses})
}

func (f *fakeWallet) primary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]string{"address": primaryAddress})
}

func (f *fakeWallet) createAddress(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addresses = append(f.addresses, walletAddress)
	writeJSON(w, 201, CreatedAddress{Address: walletAddress, PrivateSpendKey: txHash, PublicSpendKey: txHash})
}

func (f *fakeWallet) importAddress(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addresses = append(f.addresses, walletAddress)
	writeJSON(w, 201, map[string]string{"address": walletAddress})
}

func (f *fakeWallet) deleteAddress(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr == primaryAddress {
		walletError(w, http.StatusBadRequest, 3, "cannot delete the primary address")
		return
	}
	for i, a := range f.addresses {
		if a == addr {
			f.addresses = append(f.addresses[:i], f.addresses[i+1:]...)
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	walletError(w, http.StatusBadRequest, 4, "address not in wallet")
}

func (f *fakeWallet) validate(w http.ResponseWriter, _ *http.Request) {
	var addr string
	_ = json.Unmarshal(f.body()["address"], &addr)
	decoded, err := address.Decode(addr)
	if err != nil {
		walletError(w, http.StatusBadRequest, 5, "address is not valid")
		return
	}
	writeJSON(w, 200, ValidatedAddress{
		IsIntegrated:   decoded.IsIntegrated(),
		PaymentID:      decoded.PaymentID,
		ActualAddress:  decoded.Standard().String(),
		PublicSpendKey: decoded.PublicSpendKeyHex(),
		PublicViewKey:  decoded.PublicViewKeyHex(),
	})
}

func (f *fakeWallet) integrate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	decoded, err := address.Decode(vars["address"])
	if err != nil {
		walletError(w, http.StatusBadRequest, 5, "address is not valid")
		return
	}
	integrated, err := decoded.Integrate(vars["paymentID"])
	if err != nil {
		walletError(w, http.StatusBadRequest, 6, "payment ID is not valid")
		return
	}
	writeJSON(w, 200, map[string]string{"integratedAddress": integrated.String()})
}

func (f *fakeWallet) balance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, Balance{})
}

func (f *fakeWallet) balances(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]AddressBalance, len(f.addresses))
	for i, a := range f.addresses {
		out[i] = AddressBalance{Address: a}
	}
	writeJSON(w, 200, out)
}

func (f *fakeWallet) keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]string{"privateViewKey": txHash})
}

func (f *fakeWallet) spendKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, SpendKeys{PrivateSpendKey: txHash, PublicSpendKey: txHash})
}

func (f *fakeWallet) mnemonic(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]string{"mnemonicSeed": "five aphid spiders"})
}

func (f *fakeWallet) send(w http.ResponseWriter, r *http.Request) {
	relayed := r.URL.Path != "/transactions/prepare/basic" && r.URL.Path != "/transactions/prepare/advanced"
	writeJSON(w, 200, SendResult{TransactionHash: txHash, Fee: 10, RelayedToNetwork: relayed})
}

func (f *fakeWallet) transactionByHash(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["hash"] != txHash {
		walletError(w, http.StatusNotFound, 7, "transaction not found")
		return
	}
	writeJSON(w, 200, map[string]any{"transaction": Transaction{Hash: txHash, Fee: 10}})
}

func (f *fakeWallet) privateKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]string{"transactionPrivateKey": txHash})
}

func (f *fakeWallet) emptyTransactions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]any{"transactions": nil})
}
