package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-platform/internal/bet-service/dto"
	"github.com/radieske/bet-settlement-platform/internal/bet-service/service"
	"github.com/radieske/bet-settlement-platform/internal/ledger"
)

type Server struct {
	log *zap.Logger
	svc *service.Service
}

func NewServer(log *zap.Logger, svc *service.Service) *Server {
	return &Server{log: log, svc: svc}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bets", s.bets)                // POST place, GET list
	mux.HandleFunc("/bets/", s.betSubtree)         // GET /bets/{id}, GET|POST /bets/{id}/redeem
	mux.HandleFunc("/players/", s.playerBets)      // GET /players/{id}/bets
	mux.HandleFunc("/agents/", s.agentBets)        // GET /agents/{id}/bets
	mux.HandleFunc("/bet-details/", s.resolveLeg)  // PUT /bet-details/{id}/resolve
	return mux
}

func (s *Server) bets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.placeBet(w, r)
	case http.MethodGet:
		s.listBets(w, r, ledger.BetQuery{})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	bet, balance, err := s.svc.PlaceBet(r.Context(), req)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{
		BetID:        bet.ID,
		Status:       bet.Status,
		PayoutCents:  bet.PayoutCents,
		BalanceCents: balance,
	})
}

// /bets/{id} e /bets/{id}/redeem
func (s *Server) betSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/bets/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.getBet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "redeem":
		s.redeem(w, r, parts[0])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request, id string) {
	bet, details, err := s.svc.GetBet(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBetResponse(bet, details))
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request, betID string) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		http.Error(w, "playerId required", http.StatusBadRequest)
		return
	}

	var resp *dto.RedeemQuoteResponse
	var err error
	switch r.Method {
	case http.MethodGet:
		resp, err = s.svc.RedeemQuote(r.Context(), playerID, betID)
	case http.MethodPost:
		resp, err = s.svc.Redeem(r.Context(), playerID, betID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /players/{id}/bets
func (s *Server) playerBets(w http.ResponseWriter, r *http.Request) {
	id, ok := scopedBetsID(r.URL.Path, "/players/")
	if !ok || r.Method != http.MethodGet {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.listBets(w, r, ledger.BetQuery{PlayerID: id})
}

// GET /agents/{id}/bets
func (s *Server) agentBets(w http.ResponseWriter, r *http.Request) {
	id, ok := scopedBetsID(r.URL.Path, "/agents/")
	if !ok || r.Method != http.MethodGet {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.listBets(w, r, ledger.BetQuery{AgentID: id})
}

func scopedBetsID(path, prefix string) (string, bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "bets" {
		return "", false
	}
	return parts[0], true
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request, q ledger.BetQuery) {
	vals := r.URL.Query()
	q.Status = vals.Get("status")
	q.Page = intParam(vals.Get("page"), 1)
	q.Limit = intParam(vals.Get("limit"), 20)
	day, err := service.ParseDay(vals.Get("date"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	q.Day = day

	bets, total, err := s.svc.ListBets(r.Context(), q)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	data := make([]dto.BetResponse, 0, len(bets))
	for _, b := range bets {
		data = append(data, toBetResponse(b, nil))
	}
	totalPages := (total + q.Limit - 1) / q.Limit
	writeJSON(w, http.StatusOK, dto.ListBetsResponse{
		TotalBets:  total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: totalPages,
		Data:       data,
	})
}

// PUT /bet-details/{id}/resolve
func (s *Server) resolveLeg(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/bet-details/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "resolve" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dto.ResolveLegRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	bet, err := s.svc.ResolveLeg(r.Context(), parts[0], req.Status)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBetResponse(bet, nil))
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrConflictingBet):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrNotPending),
		errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrPlayerOffline):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toBetResponse(b *ledger.Bet, details []*ledger.BetDetail) dto.BetResponse {
	resp := dto.BetResponse{
		ID:          b.ID,
		PlayerID:    b.PlayerID,
		StakeCents:  b.StakeCents,
		PayoutCents: b.PayoutCents,
		Status:      b.Status,
		BetType:     b.BetType,
		Resolved:    b.Resolved,
		CreatedAt:   b.CreatedAt,
	}
	for _, d := range details {
		resp.Details = append(resp.Details, dto.BetDetailResponse{
			ID:           d.ID,
			EventID:      d.EventID,
			SportKey:     d.SportKey,
			SportTitle:   d.SportTitle,
			Category:     d.Category,
			Selection:    d.Selection,
			Price:        d.Price,
			Point:        d.Point,
			Bookmaker:    d.Bookmaker,
			CommenceTime: d.CommenceTime,
			Status:       d.Status,
			Resolved:     d.Resolved,
		})
	}
	return resp
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
