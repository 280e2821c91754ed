package reporter

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/TEENet-io/lending-go/btcaction"
)

const (
	txA = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	txB = "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098"
	txC = "9b0fc92260312ce44e74ef369f5c66bbb85848f2eddd5a7a1cde251e54ccfdd5"

	evmTx = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestReporter(t *testing.T) (*HttpReporter, *btcaction.SQLiteFillStorage) {
	st, err := btcaction.NewSQLiteFillStorage(filepath.Join(t.TempDir(), "fill.db"))
	if err != nil {
		t.Fatalf("cannot create storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	assert.NoError(t, st.AddFill(btcaction.FillAction{
		Basic:           btcaction.Basic{TxHash: txA},
		CreatedAt:       time.Unix(1700000000, 0),
		BorrowerAddress: "bcrt1qborrower",
		LenderAddress:   "bcrt1qlender",
		Amount:          700,
	}))
	assert.NoError(t, st.AddFill(btcaction.FillAction{
		Basic:           btcaction.Basic{TxHash: txB},
		BorrowerAddress: "bcrt1qother",
		Amount:          900,
	}))
	assert.NoError(t, st.MarkConfirmed(txB, &btcaction.Basic{BlockNumber: 150, BlockHash: "00ab"}))
	assert.NoError(t, st.AddFill(btcaction.FillAction{
		Basic:           btcaction.Basic{TxHash: txC},
		BorrowerAddress: "bcrt1qlent",
		Amount:          1200,
	}))
	assert.NoError(t, st.MarkConfirmed(txC, &btcaction.Basic{BlockNumber: 151, BlockHash: "00cd"}))
	assert.NoError(t, st.MarkLent(txC, evmTx))

	return NewHttpReporter("127.0.0.1", "0", st), st
}

type fillsResponse struct {
	Data  []Fill `json:"data"`
	Error string `json:"error"`
}

type fillResponse struct {
	Data  Fill   `json:"data"`
	Error string `json:"error"`
}

func serve(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		t.Fatalf("cannot create request: %v", err)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestHello(t *testing.T) {
	h, _ := newTestReporter(t)
	w := serve(t, h.SetupRouter(), ROUTE_HELLO)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"world"}`, w.Body.String())
}

func TestGetFill(t *testing.T) {
	h, _ := newTestReporter(t)
	router := h.SetupRouter()

	w := serve(t, router, "/fills/"+txA)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp fillResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, txA, resp.Data.TxID)
	assert.Equal(t, "pending", resp.Data.Status)
	assert.Equal(t, "bcrt1qborrower", resp.Data.BorrowerAddress)
	assert.Equal(t, int64(700), resp.Data.Amount)
	assert.Equal(t, int64(1700000000), resp.Data.CreatedAt.Unix())

	w = serve(t, router, "/fills/"+txB)
	resp = fillResponse{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", resp.Data.Status)
	assert.Equal(t, int64(150), resp.Data.BlockHeight)
	assert.Empty(t, resp.Data.EvmTxHash)

	w = serve(t, router, "/fills/"+txC)
	resp = fillResponse{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "lent", resp.Data.Status)
	assert.Equal(t, evmTx, resp.Data.EvmTxHash)

	w = serve(t, router, "/fills/ffff")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListFills(t *testing.T) {
	h, _ := newTestReporter(t)
	router := h.SetupRouter()

	cases := []struct {
		path string
		code int
		txs  []string
	}{
		{"/fills", http.StatusOK, []string{txC, txB, txA}},
		{"/fills?limit=1", http.StatusOK, []string{txC}},
		{"/fills?status=pending", http.StatusOK, []string{txA}},
		{"/fills?status=confirmed", http.StatusOK, []string{txB}},
		{"/fills?status=lent", http.StatusOK, []string{txC}},
		{"/fills?borrower=bcrt1qother", http.StatusOK, []string{txB}},
		{"/fills?borrower=nobody", http.StatusOK, []string{}},
		{"/fills?status=lost", http.StatusBadRequest, nil},
		{"/fills?limit=-1", http.StatusBadRequest, nil},
		{"/fills?status=pending&borrower=bcrt1qother", http.StatusBadRequest, nil},
	}
	for _, tc := range cases {
		w := serve(t, router, tc.path)
		if w.Code != tc.code {
			t.Fatalf("%s: have %d, want %d", tc.path, w.Code, tc.code)
		}
		var resp fillsResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		if tc.code != http.StatusOK {
			assert.NotEmpty(t, resp.Error, tc.path)
			continue
		}
		got := make([]string, 0, len(resp.Data))
		for _, f := range resp.Data {
			got = append(got, f.TxID)
		}
		assert.Equal(t, tc.txs, got, tc.path)
	}
}

func TestHttpReader(t *testing.T) {
	h, _ := newTestReporter(t)
	srv := httptest.NewServer(h.SetupRouter())
	defer srv.Close()

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	assert.NoError(t, err)
	reader := NewHttpReader(host, port)

	hello, err := reader.GetHello()
	assert.NoError(t, err)
	assert.Contains(t, hello, "world")

	code, body, err := reader.GetFill(txA)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, txA)

	code, body, err = reader.GetFillsByStatus("confirmed")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, txB)
	assert.NotContains(t, body, txA)
}

func TestRunStopsOnCancel(t *testing.T) {
	h, _ := newTestReporter(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("reporter did not stop")
	}
}
