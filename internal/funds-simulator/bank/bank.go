package bank

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	fundsdto "github.com/radieske/prop-contests/internal/contest-service/funds/dto"
)

// Bank simula o gateway externo de fundos: saldos por conta e transferências
// idempotentes por Idempotency-Key.
type Bank struct {
	mu        sync.Mutex
	balances  map[string]int64
	transfers map[string]fundsdto.TransferResponse

	failurePct int
	log        *zap.Logger
	transfersC *prometheus.CounterVec
}

// New cria o banco simulado. failurePct (0-100) é a chance de uma transferência
// responder 503.
func New(failurePct int, reg prometheus.Registerer, log *zap.Logger) *Bank {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bank{
		balances:   map[string]int64{},
		transfers:  map[string]fundsdto.TransferResponse{},
		failurePct: failurePct,
		log:        log,
		transfersC: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funds_simulator_transfers_total",
			Help: "Transferências recebidas pelo simulador, por resultado",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(b.transfersC)
	}
	return b
}

// Seed define o saldo inicial de uma conta
func (b *Bank) Seed(account string, cents int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = cents
}

// Routes registra os endpoints do gateway no roteador
func (b *Bank) Routes(r chi.Router) {
	r.Get("/accounts/{id}/balance", b.balanceHandler)
	r.Put("/accounts/{id}/balance", b.seedHandler)
	r.Post("/transfers", b.transferHandler)
}

func (b *Bank) balanceHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	bal := b.balances[id]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, fundsdto.BalanceResponse{UserID: id, BalanceCents: bal})
}

func (b *Bank) seedHandler(w http.ResponseWriter, r *http.Request) {
	var req fundsdto.BalanceResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BalanceCents < 0 {
		writeJSON(w, http.StatusBadRequest, fundsdto.ErrorResponse{Error: "bad request"})
		return
	}
	id := chi.URLParam(r, "id")
	b.Seed(id, req.BalanceCents)
	writeJSON(w, http.StatusOK, fundsdto.BalanceResponse{UserID: id, BalanceCents: req.BalanceCents})
}

func (b *Bank) transferHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req fundsdto.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountRef == "" || req.AmountCents <= 0 {
		b.transfersC.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, fundsdto.ErrorResponse{Error: "bad request"})
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.SourceRef
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.transfers[key]; ok && key != "" {
		b.transfersC.WithLabelValues("replayed").Inc()
		writeJSON(w, http.StatusOK, prev)
		return
	}
	if b.failurePct > 0 && rand.Intn(100) < b.failurePct {
		b.transfersC.WithLabelValues("unavailable").Inc()
		b.log.Info("simulated transfer failure", zap.String("source_ref", req.SourceRef))
		writeJSON(w, http.StatusServiceUnavailable, fundsdto.ErrorResponse{Error: "gateway_unavailable_mock"})
		return
	}

	switch req.Kind {
	case "WITHDRAWAL":
		b.balances[req.AccountRef] += req.AmountCents
	case "DEPOSIT":
		if b.balances[req.AccountRef] < req.AmountCents {
			b.transfersC.WithLabelValues("rejected").Inc()
			writeJSON(w, http.StatusUnprocessableEntity, fundsdto.ErrorResponse{Error: "insufficient external funds"})
			return
		}
		b.balances[req.AccountRef] -= req.AmountCents
	default:
		b.transfersC.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, fundsdto.ErrorResponse{Error: fmt.Sprintf("unknown kind %q", req.Kind)})
		return
	}

	resp := fundsdto.TransferResponse{TransferRef: "TR-" + uuid.NewString()[:8], Status: "COMPLETED"}
	if key != "" {
		b.transfers[key] = resp
	}
	b.transfersC.WithLabelValues("completed").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
