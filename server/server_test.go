package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/proxy"
	"github.com/vitwit/x402-facilitator/types"
)

const reportPrice = 2_000_000

// stubLedger is an in-memory Ledger that records call counts.
type stubLedger struct {
	mu sync.Mutex

	simulateErr error
	submitErr   error
	confirmErr  error

	simulateCalls int
	submitCalls   int
	confirmCalls  int
}

func (s *stubLedger) Simulate(ctx context.Context, tx *solana.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulateCalls++
	return s.simulateErr
}

func (s *stubLedger) Submit(ctx context.Context, rawTx []byte) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitCalls++
	if s.submitErr != nil {
		return solana.Signature{}, s.submitErr
	}
	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(rawTx))
	if err != nil {
		return solana.Signature{}, err
	}
	return tx.Signatures[0], nil
}

func (s *stubLedger) AwaitConfirmation(ctx context.Context, sig solana.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmCalls++
	return s.confirmErr
}

func (s *stubLedger) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return 5_000_000_000, nil
}

func (s *stubLedger) Close() {}

func (s *stubLedger) counts() (simulate, submit, confirm int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simulateCalls, s.submitCalls, s.confirmCalls
}

// testBackend is the stand-in content backend.
type testBackend struct {
	mu          sync.Mutex
	lastHeaders http.Header
	server      *httptest.Server
}

func newTestBackend() *testBackend {
	b := &testBackend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.lastHeaders = r.Header.Clone()
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/info":
			_, _ = w.Write([]byte(`{"service":"portfolio","status":"ok"}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"report":"all holdings are doing fine"}}`))
		}
	}))
	return b
}

func (b *testBackend) headers() http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastHeaders
}

type fixture struct {
	server    *Server
	ledger    *stubLedger
	backend   *testBackend
	recipient solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	recipient := solana.NewWallet().PublicKey()
	backend := newTestBackend()
	t.Cleanup(backend.server.Close)

	cfg := config.Config{
		HTTPAddr:     ":0",
		SolanaRPCURL: "http://unused",
		Network:      types.NetworkSolanaDevnet,
		PayTo:        recipient.String(),
		BackendURL:   backend.server.URL,
		AllowedOrigins: []string{
			"*",
		},
		PricedResources: []config.PricedResource{
			{Pattern: "/api/report/*", Price: reportPrice, Description: "AI portfolio report"},
		},
		ReceiptTTL:        5 * time.Minute,
		ConfirmTimeout:    5 * time.Second,
		ConfirmLevel:      "finalized",
		MaxTimeoutSeconds: 60,
		LogLevel:          "info",
		EnableMetrics:     false,
	}
	require.NoError(t, cfg.Validate())

	ledger := &stubLedger{}
	srv, err := New(cfg, ledger)
	require.NoError(t, err)

	return &fixture{server: srv, ledger: ledger, backend: backend, recipient: recipient}
}

// paymentHeader builds a signed transfer of amount lamports to the
// recipient and wraps it in an encoded X-Payment header value.
func (f *fixture) paymentHeader(t *testing.T, amount uint64) string {
	t.Helper()

	payer := solana.NewWallet()
	inst := system.NewTransferInstruction(amount, payer.PublicKey(), f.recipient).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{inst}, solana.Hash{}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	payload := map[string]any{
		"x402Version": 1,
		"scheme":      "exact",
		"network":     "solana-devnet",
		"payload":     map[string]string{"transaction": base64.StdEncoding.EncodeToString(raw)},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func (f *fixture) request(t *testing.T, path, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set(PaymentHeader, header)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestUnprotectedPathPassesThrough(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, "/proxy/info", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"service":"portfolio","status":"ok"}`, w.Body.String())
	assert.Empty(t, w.Header().Get(proxy.HeaderPaymentResponse))
	assert.Empty(t, w.Header().Get(proxy.HeaderPaymentSettled))
	assert.Empty(t, f.backend.headers().Get(proxy.HeaderFacilitatorVerified))

	simulate, submit, _ := f.ledger.counts()
	assert.Zero(t, simulate)
	assert.Zero(t, submit)
}

func TestProtectedPathWithoutPaymentGetsChallenge(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, "/proxy/api/report/daily", "")
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body types.X402Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.X402Version)
	assert.Equal(t, "Payment Required", body.Error)
	require.Len(t, body.Accepts, 1)

	req := body.Accepts[0]
	assert.Equal(t, "2000000", req.MaxAmountRequired)
	assert.Equal(t, "AI portfolio report", req.Description)
	assert.Equal(t, f.recipient.String(), req.PayTo)
	assert.Equal(t, "solana-devnet", req.Network)

	// The header mirrors the body.
	encoded := w.Header().Get(ChallengeHeader)
	require.NotEmpty(t, encoded)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	var headerBody types.X402Response
	require.NoError(t, json.Unmarshal(decoded, &headerBody))
	assert.Equal(t, body, headerBody)

	simulate, submit, _ := f.ledger.counts()
	assert.Zero(t, simulate)
	assert.Zero(t, submit)
}

func TestSuccessfulPaymentRelaysWithProof(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, "/proxy/api/report/daily", f.paymentHeader(t, reportPrice))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["paymentVerified"])

	details, ok := data["paymentDetails"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, details["signature"])
	assert.NotEmpty(t, details["payer"])
	assert.Contains(t, details["explorerUrl"], details["signature"])

	// Receipt header decodes to the settlement receipt.
	encoded := w.Header().Get(proxy.HeaderPaymentResponse)
	require.NotEmpty(t, encoded)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	var receipt types.PaymentReceipt
	require.NoError(t, json.Unmarshal(decoded, &receipt))
	assert.True(t, receipt.Success)
	assert.Equal(t, "solana-devnet", receipt.Network)
	assert.Equal(t, details["signature"], receipt.Transaction)

	// The backend saw the trust and proof headers.
	assert.Equal(t, "true", f.backend.headers().Get(proxy.HeaderFacilitatorVerified))
	assert.NotEmpty(t, f.backend.headers().Get(proxy.HeaderPaymentSettled))

	simulate, submit, confirm := f.ledger.counts()
	assert.Equal(t, 1, simulate)
	assert.Equal(t, 1, submit)
	assert.Equal(t, 1, confirm)

	// A receipt is live for the settled signature.
	assert.True(t, f.server.Store().IsUsed(receipt.Transaction))
}

func TestInsufficientAmountRejected(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, "/proxy/api/report/daily", f.paymentHeader(t, reportPrice-1))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body types.X402Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, types.ErrAmountInsufficient, body.Error)

	simulate, submit, _ := f.ledger.counts()
	assert.Zero(t, simulate)
	assert.Zero(t, submit)
}

func TestUnsupportedVersionFailsBeforeAnyNetworkCall(t *testing.T) {
	f := newFixture(t)

	payload, err := json.Marshal(map[string]any{
		"x402Version": 2,
		"scheme":      "exact",
		"network":     "solana-devnet",
		"payload":     map[string]string{"transaction": "dHg="},
	})
	require.NoError(t, err)

	w := f.request(t, "/proxy/api/report/daily", base64.StdEncoding.EncodeToString(payload))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body types.X402Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, types.ErrUnsupportedVersion)

	simulate, submit, _ := f.ledger.counts()
	assert.Zero(t, simulate)
	assert.Zero(t, submit)
}

func TestSimulationFailureNeverReachesSettlement(t *testing.T) {
	f := newFixture(t)
	f.ledger.simulateErr = errors.New("transaction would fail: InsufficientFundsForRent")

	w := f.request(t, "/proxy/api/report/daily", f.paymentHeader(t, reportPrice))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body types.X402Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "simulation_failed:")

	simulate, submit, _ := f.ledger.counts()
	assert.Equal(t, 1, simulate)
	assert.Zero(t, submit)
}

func TestSubmissionRejectedSurfacedAs402(t *testing.T) {
	f := newFixture(t)
	f.ledger.submitErr = errors.New("blockhash not found")

	w := f.request(t, "/proxy/api/report/daily", f.paymentHeader(t, reportPrice))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body types.X402Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, types.ErrSubmissionRejected)
	assert.Contains(t, body.Error, "blockhash not found")
}

func TestConfirmationFailureSurfacedAs402(t *testing.T) {
	f := newFixture(t)
	f.ledger.confirmErr = errors.New("transaction failed on-chain: InsufficientFunds")

	w := f.request(t, "/proxy/api/report/daily", f.paymentHeader(t, reportPrice))
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body types.X402Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, types.ErrConfirmationFailed)
}

func TestReplayedSignatureRejected(t *testing.T) {
	f := newFixture(t)
	header := f.paymentHeader(t, reportPrice)

	first := f.request(t, "/proxy/api/report/daily", header)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.request(t, "/proxy/api/report/daily", header)
	require.Equal(t, http.StatusPaymentRequired, second.Code)

	var body types.X402Response
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, types.ErrSignatureAlreadyUsed, body.Error)

	// The replay never reached the ledger again.
	simulate, submit, _ := f.ledger.counts()
	assert.Equal(t, 1, simulate)
	assert.Equal(t, 1, submit)
}

func TestBackendUnavailableIs502(t *testing.T) {
	f := newFixture(t)
	f.backend.server.Close()

	w := f.request(t, "/proxy/info", "")
	require.Equal(t, http.StatusBadGateway, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Backend unavailable", body["error"])
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "solana-devnet", body["network"])
	assert.Equal(t, f.recipient.String(), body["recipient"])
	assert.EqualValues(t, 5_000_000_000, body["recipientBalance"])
}

func TestSupportedEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/supported", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body types.SupportedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Kinds, 1)
	assert.Equal(t, "exact", body.Kinds[0].Scheme)
	assert.Equal(t, "solana-devnet", body.Kinds[0].Network)
	require.Len(t, body.Resources, 1)
	assert.Equal(t, "2000000", body.Resources[0].MaxAmountRequired)
}
