package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/wallet"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
)

func newTestAccount(t *testing.T) *wallet.Account {
	t.Helper()
	priv, err := keys.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return wallet.NewAccountFromPrivateKey(priv)
}

// fakeNode serves canned JSON-RPC responses per method.
func fakeNode(t *testing.T, handlers map[string]func(params []any) (any, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		resp := RPCResponse{JSONRPC: "2.0", ID: req.ID}
		handler, ok := handlers[req.Method]
		if !ok {
			resp.Error = &RPCError{Code: -32601, Message: "method not found: " + req.Method}
		} else {
			result, rpcErr := handler(req.Params)
			if rpcErr != nil {
				resp.Error = rpcErr
			} else {
				raw, err := json.Marshal(result)
				if err != nil {
					t.Errorf("marshal result: %v", err)
					return
				}
				resp.Result = raw
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode rpc response: %v", err)
		}
	}))
}

func TestContractFor(t *testing.T) {
	if got := contractFor(domain.NativeAsset); got != GASContract {
		t.Fatalf("contractFor(native) = %q, want GAS contract", got)
	}
	token := "0x1234567890abcdef1234567890abcdef12345678"
	if got := contractFor(token); got != token {
		t.Fatalf("contractFor(token) = %q, want %q", got, token)
	}
}

func TestClientCallRPCError(t *testing.T) {
	srv := fakeNode(t, map[string]func([]any) (any, *RPCError){
		"getblockcount": func([]any) (any, *RPCError) {
			return nil, &RPCError{Code: -100, Message: "Unknown block"}
		},
	})
	defer srv.Close()

	client, err := NewClient(Config{RPCURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.GetBlockCount(context.Background())
	if err == nil {
		t.Fatal("GetBlockCount() error = nil, want rpc error")
	}
	if !isNotFoundError(err) {
		t.Fatalf("isNotFoundError(%v) = false, want true", err)
	}
}

func TestBalanceOf(t *testing.T) {
	srv := fakeNode(t, map[string]func([]any) (any, *RPCError){
		"invokefunction": func([]any) (any, *RPCError) {
			return InvokeResult{
				State:       "HALT",
				GasConsumed: "202800",
				Stack: []StackItem{
					{Type: "Integer", Value: json.RawMessage(`"12345"`)},
				},
			}, nil
		},
	})
	defer srv.Close()

	client, err := NewClient(Config{RPCURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	escrow := newTestAccount(t)
	resolver, err := NewStaticKeyResolver(nil)
	if err != nil {
		t.Fatalf("NewStaticKeyResolver() error = %v", err)
	}
	ledger := NewNEP17Ledger(client, escrow, resolver, nil)

	balance, err := ledger.BalanceOf(context.Background(), domain.NativeAsset, escrow.Address)
	if err != nil {
		t.Fatalf("BalanceOf() error = %v", err)
	}
	if balance.Int64() != 12345 {
		t.Fatalf("BalanceOf() = %v, want 12345", balance)
	}
}

func TestTransferOutFullPath(t *testing.T) {
	script := base64.StdEncoding.EncodeToString([]byte{0x51})

	srv := fakeNode(t, map[string]func([]any) (any, *RPCError){
		"invokefunction": func(params []any) (any, *RPCError) {
			return InvokeResult{
				Script:      script,
				State:       "HALT",
				GasConsumed: "997775",
				Stack: []StackItem{
					{Type: "Boolean", Value: json.RawMessage(`true`)},
				},
			}, nil
		},
		"getblockcount": func([]any) (any, *RPCError) {
			return 100, nil
		},
		"sendrawtransaction": func([]any) (any, *RPCError) {
			return map[string]string{"hash": "0xabc"}, nil
		},
		"getapplicationlog": func([]any) (any, *RPCError) {
			return ApplicationLog{
				Executions: []Execution{{VMState: "HALT"}},
			}, nil
		},
	})
	defer srv.Close()

	client, err := NewClient(Config{RPCURL: srv.URL, NetworkID: 894710606})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	escrow := newTestAccount(t)
	recipient := newTestAccount(t)
	resolver, err := NewStaticKeyResolver(nil)
	if err != nil {
		t.Fatalf("NewStaticKeyResolver() error = %v", err)
	}

	ledger := NewNEP17Ledger(client, escrow, resolver, nil)
	ledger.pollInterval = 10 * time.Millisecond
	ledger.waitTimeout = time.Second

	if err := ledger.TransferOut(context.Background(), domain.NativeAsset, recipient.Address, 50); err != nil {
		t.Fatalf("TransferOut() error = %v", err)
	}
}

func TestTransferOutSimulationFault(t *testing.T) {
	srv := fakeNode(t, map[string]func([]any) (any, *RPCError){
		"invokefunction": func([]any) (any, *RPCError) {
			return InvokeResult{
				State:     "FAULT",
				Exception: "insufficient balance",
			}, nil
		},
	})
	defer srv.Close()

	client, err := NewClient(Config{RPCURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	escrow := newTestAccount(t)
	recipient := newTestAccount(t)
	resolver, err := NewStaticKeyResolver(nil)
	if err != nil {
		t.Fatalf("NewStaticKeyResolver() error = %v", err)
	}

	ledger := NewNEP17Ledger(client, escrow, resolver, nil)
	if err := ledger.TransferOut(context.Background(), domain.NativeAsset, recipient.Address, 50); err == nil {
		t.Fatal("TransferOut() error = nil, want fault")
	}
}

func TestTransferInUnknownContributor(t *testing.T) {
	client, err := NewClient(Config{RPCURL: "http://localhost:0"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	escrow := newTestAccount(t)
	resolver, err := NewStaticKeyResolver(nil)
	if err != nil {
		t.Fatalf("NewStaticKeyResolver() error = %v", err)
	}

	ledger := NewNEP17Ledger(client, escrow, resolver, nil)
	stranger := newTestAccount(t)
	if err := ledger.TransferIn(context.Background(), domain.NativeAsset, stranger.Address, 50); err == nil {
		t.Fatal("TransferIn() error = nil, want unresolved account error")
	}
}

func TestStaticKeyResolver(t *testing.T) {
	resolver, err := NewStaticKeyResolver(nil)
	if err != nil {
		t.Fatalf("NewStaticKeyResolver() error = %v", err)
	}

	acc := newTestAccount(t)
	resolver.Add(acc)

	got, err := resolver.AccountFor(acc.Address)
	if err != nil {
		t.Fatalf("AccountFor() error = %v", err)
	}
	if got.Address != acc.Address {
		t.Fatalf("AccountFor() address = %q, want %q", got.Address, acc.Address)
	}

	if _, err := resolver.AccountFor("NUnknownAddress"); err == nil {
		t.Fatal("AccountFor(unknown) error = nil, want error")
	}
}
