// Package httpapi exposes ledger operations over a JSON REST API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/events"
	"meme-token-ledger/internal/ledger"
	"meme-token-ledger/internal/observability"
	"meme-token-ledger/internal/rewards"
	"meme-token-ledger/internal/service"
	"meme-token-ledger/internal/solana"
	"meme-token-ledger/internal/storage"
)

// Options configures optional routes.
type Options struct {
	// Stream serves the live event stream on /ws when set.
	Stream http.Handler
	// Status returns the body of /status when set.
	Status func() any
	// Events serves the event history of a mint when set.
	Events storage.EventStore
	Log    *logrus.Entry
}

type handler struct {
	svc    *service.Service
	events storage.EventStore
	log    *logrus.Entry
}

// NewRouter returns a router exposing the ledger API.
func NewRouter(svc *service.Service, opts Options) *mux.Router {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	h := &handler{svc: svc, events: opts.Events, log: log.WithField("component", "httpapi")}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, loggingMiddleware(h.log))

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	if opts.Status != nil {
		r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, opts.Status())
		}).Methods(http.MethodGet)
	}
	if opts.Stream != nil {
		r.Handle("/ws", opts.Stream)
	}

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/tokens", h.listTokens).Methods(http.MethodGet)
	api.HandleFunc("/tokens", h.initializeToken).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}", h.getToken).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{mint}/holders/{holder}", h.getHolder).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{mint}/settle", h.settle).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}/fund", h.fund).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}/stake", h.stake).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}/unstake", h.unstake).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}/claim", h.claim).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}/transfers", h.transfer).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}/price-impact", h.priceImpact).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}/proposals", h.listProposals).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{mint}/proposals", h.createProposal).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}/proposals/{id}", h.getProposal).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{mint}/proposals/{id}/votes", h.vote).Methods(http.MethodPost)
	api.HandleFunc("/tokens/{mint}/proposals/{id}/outcome", h.outcome).Methods(http.MethodGet)
	if h.events != nil {
		api.HandleFunc("/tokens/{mint}/events", h.listEvents).Methods(http.MethodGet)
	}

	return r
}

func (h *handler) listTokens(w http.ResponseWriter, r *http.Request) {
	mints, err := h.svc.Mints(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if mints == nil {
		mints = []solana.Pubkey{}
	}
	writeJSON(w, http.StatusOK, mints)
}

func (h *handler) initializeToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Creator solana.Pubkey `json:"creator"`
		Mint    solana.Pubkey `json:"mint"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	state, err := h.svc.InitializeToken(r.Context(), payload.Creator, payload.Mint)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (h *handler) getToken(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	state, err := h.svc.Token(r.Context(), mint)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *handler) getHolder(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	holder, ok := pathKey(w, r, "holder")
	if !ok {
		return
	}
	info, err := h.svc.Holder(r.Context(), mint, holder)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handler) settle(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	var payload struct {
		Holder  solana.Pubkey `json:"holder"`
		Balance *uint64       `json:"balance"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		res rewards.SettleResult
		err error
	)
	if payload.Balance != nil {
		res, err = h.svc.SettleBalance(r.Context(), mint, payload.Holder, *payload.Balance)
	} else {
		res, err = h.svc.Settle(r.Context(), mint, payload.Holder)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type amountRequest struct {
	Holder solana.Pubkey `json:"holder"`
	Amount uint64        `json:"amount"`
}

func (h *handler) fund(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	var payload struct {
		Funder solana.Pubkey `json:"funder"`
		Amount uint64        `json:"amount"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.Fund(r.Context(), mint, payload.Funder, payload.Amount); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) stake(w http.ResponseWriter, r *http.Request) {
	h.changeStake(w, r, h.svc.Stake)
}

func (h *handler) unstake(w http.ResponseWriter, r *http.Request) {
	h.changeStake(w, r, h.svc.Unstake)
}

type stakeFunc func(ctx context.Context, mint, holder solana.Pubkey, amount uint64) (rewards.SettleResult, error)

func (h *handler) changeStake(w http.ResponseWriter, r *http.Request, fn stakeFunc) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	var payload amountRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := fn(r.Context(), mint, payload.Holder, payload.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) claim(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	var payload struct {
		Holder solana.Pubkey `json:"holder"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := h.svc.Claim(r.Context(), mint, payload.Holder)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

func (h *handler) transfer(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	var payload struct {
		From   solana.Pubkey `json:"from"`
		To     solana.Pubkey `json:"to"`
		Amount uint64        `json:"amount"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.svc.Transfer(r.Context(), mint, payload.From, payload.To, payload.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) priceImpact(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	var payload struct {
		Amount    uint64 `json:"amount"`
		ImpactBps int16  `json:"impact_bps"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.RecordPriceImpact(r.Context(), mint, payload.Amount, payload.ImpactBps); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listProposals(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	props, err := h.svc.Proposals(r.Context(), mint)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if props == nil {
		props = []*domain.Proposal{}
	}
	writeJSON(w, http.StatusOK, props)
}

func (h *handler) createProposal(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}
	var payload struct {
		Proposer     solana.Pubkey           `json:"proposer"`
		Description  string                  `json:"description"`
		ProposalType domain.ProposalTypeJSON `json:"proposal_type"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pt, err := payload.ProposalType.Decode()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	p, err := h.svc.CreateProposal(r.Context(), mint, payload.Proposer, payload.Description, pt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) getProposal(w http.ResponseWriter, r *http.Request) {
	mint, id, ok := proposalKey(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Proposal(r.Context(), mint, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) vote(w http.ResponseWriter, r *http.Request) {
	mint, id, ok := proposalKey(w, r)
	if !ok {
		return
	}
	var payload struct {
		Voter   solana.Pubkey `json:"voter"`
		Support bool          `json:"support"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.svc.Vote(r.Context(), mint, id, payload.Voter, payload.Support)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) outcome(w http.ResponseWriter, r *http.Request) {
	mint, id, ok := proposalKey(w, r)
	if !ok {
		return
	}
	status, err := h.svc.Outcome(r.Context(), mint, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.ProposalStatus{"status": status})
}

// listEvents returns events of a mint after the "after" sequence, at most
// "limit" of them (default 100, max 1000).
func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return
	}

	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("after: %w", err))
			return
		}
		after = n
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = min(n, 1000)
	}

	envs, err := h.events.GetByMint(r.Context(), mint, after, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if envs == nil {
		envs = []*events.Envelope{}
	}
	writeJSON(w, http.StatusOK, envs)
}

// fail maps err to a response status and writes it.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("request_id", RequestID(r.Context())).Error("request failed")
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ledger.ErrUnknownMint):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrProposalAlreadyExecuted),
		errors.Is(err, domain.ErrVotingOpen):
		return http.StatusConflict
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientProposalTokens),
		errors.Is(err, domain.ErrInvalidVotingPeriod),
		errors.Is(err, domain.ErrDescriptionTooLong),
		errors.Is(err, domain.ErrInvalidBps),
		errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrArithmeticOverflow),
		errors.Is(err, domain.ErrInsufficientStake),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrZeroSupply),
		errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func pathKey(w http.ResponseWriter, r *http.Request, name string) (solana.Pubkey, bool) {
	pk, err := solana.ParsePubkey(mux.Vars(r)[name])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", name, err))
		return solana.Pubkey{}, false
	}
	return pk, true
}

func proposalKey(w http.ResponseWriter, r *http.Request) (solana.Pubkey, uint64, bool) {
	mint, ok := pathKey(w, r, "mint")
	if !ok {
		return solana.Pubkey{}, 0, false
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("proposal id: %w", err))
		return solana.Pubkey{}, 0, false
	}
	return mint, id, true
}

// maxBodyBytes bounds a request body.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
