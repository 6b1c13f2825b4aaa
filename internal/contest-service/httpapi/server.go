package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/contest"
	"github.com/radieske/prop-contests/internal/contest-service/dto"
	"github.com/radieske/prop-contests/internal/contest-service/funds"
	"github.com/radieske/prop-contests/internal/contest-service/ledger"
	"github.com/radieske/prop-contests/internal/contest-service/model"
	"github.com/radieske/prop-contests/internal/contest-service/withdrawal"
)

// API expõe os endpoints REST de contests, saldo e saques
type API struct {
	Log         *zap.Logger
	Engine      *contest.Engine
	Ledger      *ledger.Service
	Withdrawals *withdrawal.Gate
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/v1/subjects/{id}/preview", a.previewPayout) // ?direction=OVER&stake_cents=1000

	r.Post("/v1/contests", a.createContest)
	r.Get("/v1/contests/{id}", a.getContest)
	r.Get("/v1/contests/{id}/contenders", a.listContenders)
	r.Get("/v1/contests/{id}/preview-claim", a.previewClaim)
	r.Post("/v1/contests/{id}/claim", a.claimContest)
	r.Post("/v1/contests/{id}/close", a.closeContest)
	r.Post("/v1/contests/{id}/settle", a.settleContest) // operação administrativa

	r.Post("/v1/statistics/final", a.statisticFinal) // entrada manual de resultado

	r.Get("/v1/users/{id}/balance", a.getBalance)
	r.Get("/v1/users/{id}/ledger", a.getLedger)
	r.Post("/v1/deposits", a.deposit)

	r.Post("/v1/withdrawals", a.requestWithdrawal)
	r.Get("/v1/withdrawals", a.listWithdrawals) // ?status=PENDING&limit=50
	r.Get("/v1/withdrawals/{id}", a.getWithdrawal)
	r.Post("/v1/withdrawals/{id}/approve", a.approveWithdrawal)
	r.Post("/v1/withdrawals/{id}/deny", a.denyWithdrawal)
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError traduz a taxonomia de erros do domínio para status HTTP
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var te *funds.TransferError
	switch {
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, model.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.As(err, &te):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		a.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return false
	}
	return true
}

// previewPayout calcula a cotação sem criar nada; sem cotação devolve zeros
func (a *API) previewPayout(w http.ResponseWriter, r *http.Request) {
	stake, err := strconv.ParseInt(r.URL.Query().Get("stake_cents"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "stake_cents required"})
		return
	}
	dir := model.Direction(r.URL.Query().Get("direction"))
	if dir == "" {
		dir = model.Over
	}
	q := a.Engine.PreviewPayout(r.Context(), chi.URLParam(r, "id"), dir, stake)
	writeJSON(w, http.StatusOK, q)
}

func (a *API) createContest(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateContestRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := a.Engine.CreateContest(r.Context(), contest.CreateRequest{
		CreatorID:  req.CreatorID,
		SubjectA:   req.SubjectA,
		SubjectB:   req.SubjectB,
		Direction:  model.Direction(req.Direction),
		StakeCents: req.StakeCents,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewContestResponse(c))
}

func (a *API) getContest(w http.ResponseWriter, r *http.Request) {
	c, err := a.Engine.GetContest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewContestResponse(c))
}

func (a *API) listContenders(w http.ResponseWriter, r *http.Request) {
	cts, err := a.Engine.Contenders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]dto.ContenderResponse, 0, len(cts))
	for _, c := range cts {
		out = append(out, dto.ContenderResponse{
			UserID:     c.UserID,
			SubjectID:  c.SubjectID,
			Direction:  string(c.Direction),
			StakeCents: c.StakeCents,
			ToWinCents: c.ToWinCents,
			Winner:     c.Winner,
			Tied:       c.Tied,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) previewClaim(w http.ResponseWriter, r *http.Request) {
	q, err := a.Engine.PreviewClaim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) claimContest(w http.ResponseWriter, r *http.Request) {
	var req dto.UserRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := a.Engine.ClaimContest(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewContestResponse(c))
}

func (a *API) closeContest(w http.ResponseWriter, r *http.Request) {
	var req dto.UserRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := a.Engine.CloseContest(r.Context(), chi.URLParam(r, "id"), req.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewContestResponse(c))
}

func (a *API) settleContest(w http.ResponseWriter, r *http.Request) {
	c, settled, err := a.Engine.SettleContest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettleResponse{Contest: dto.NewContestResponse(c), Settled: settled})
}

func (a *API) statisticFinal(w http.ResponseWriter, r *http.Request) {
	var req dto.StatisticFinalRequest
	if !decode(w, r, &req) {
		return
	}
	if err := a.Engine.OnStatisticFinal(r.Context(), req.SubjectID, req.Value); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bal, err := a.Ledger.BalanceOf(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{UserID: id, BalanceCents: bal})
}

func (a *API) getLedger(w http.ResponseWriter, r *http.Request) {
	recs, err := a.Ledger.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]dto.LedgerEntryResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, dto.LedgerEntryResponse{
			Kind:         string(rec.Kind),
			AmountCents:  rec.AmountCents,
			Reference:    rec.Reference,
			ContestID:    rec.ContestID,
			WithdrawalID: rec.WithdrawalID,
			Consumed:     rec.Consumed,
			CreatedAt:    rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// deposit registra um depósito já confirmado pelo gateway (callback)
func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if !decode(w, r, &req) {
		return
	}
	created, bal, err := a.Ledger.Deposit(r.Context(), req.UserID, req.AmountCents, req.ExternalRef)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.DepositResponse{UserID: req.UserID, Created: created, BalanceCents: bal})
}

func (a *API) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawalRequest
	if !decode(w, r, &req) {
		return
	}
	wr, err := a.Withdrawals.Request(r.Context(), req.UserID, req.AmountCents, req.Destination)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}

func (a *API) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	st := model.WithdrawalStatus(r.URL.Query().Get("status"))
	if st == "" {
		st = model.WithdrawalPending
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	list, err := a.Withdrawals.List(r.Context(), st, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) getWithdrawal(w http.ResponseWriter, r *http.Request) {
	wr, err := a.Withdrawals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

// approveWithdrawal devolve 200 com COMPLETED ou 202 quando a transferência
// ficou em PROCESSING para retentativa
func (a *API) approveWithdrawal(w http.ResponseWriter, r *http.Request) {
	wr, err := a.Withdrawals.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if wr.Status != model.WithdrawalCompleted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, wr)
}

func (a *API) denyWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.DenyRequest
	if !decode(w, r, &req) {
		return
	}
	wr, err := a.Withdrawals.Deny(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}
