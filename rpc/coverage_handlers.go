package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"peershield/core"
	"peershield/native/coverage"
)

// Application is the coverage backend served over RPC.
type Application interface {
	Execute(ctx context.Context, req core.Request) (*core.Result, error)
	List() ([]string, error)
	Details(id string) (*coverage.Details, error)
	ListClaims() ([]string, error)
	Pool() (*coverage.PoolView, error)
	Info() (*core.NodeInfo, error)
}

type CreateParams struct {
	ID             string   `json:"id"`
	Recipient      string   `json:"recipient,omitempty"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	EndHeight      *uint64  `json:"endHeight,omitempty"`
	EndTime        *uint64  `json:"endTime,omitempty"`
	TokenWhitelist []string `json:"tokenWhitelist,omitempty"`
	Funds          string   `json:"funds,omitempty"`
}

type IDParams struct {
	ID    string `json:"id"`
	Funds string `json:"funds,omitempty"`
}

type SetRecipientParams struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
}

type FundsParams struct {
	Funds string `json:"funds,omitempty"`
}

// ReceiveParams carries a token contract notification. The authenticated
// subject is the token contract.
type ReceiveParams struct {
	Sender string       `json:"sender"`
	Amount string       `json:"amount"`
	Msg    ReceiveInner `json:"msg"`
}

// ReceiveInner selects what the received tokens fund. Type is one of
// create, topUp or provideCoverage.
type ReceiveInner struct {
	Type           string   `json:"type"`
	ID             string   `json:"id,omitempty"`
	Recipient      string   `json:"recipient,omitempty"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	EndHeight      *uint64  `json:"endHeight,omitempty"`
	EndTime        *uint64  `json:"endTime,omitempty"`
	TokenWhitelist []string `json:"tokenWhitelist,omitempty"`
}

type TokenAmountResult struct {
	Contract string `json:"contract"`
	Amount   string `json:"amount"`
}

type DetailsResult struct {
	ID             string              `json:"id"`
	Arbiter        string              `json:"arbiter"`
	Recipient      string              `json:"recipient,omitempty"`
	Source         string              `json:"source"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	EndHeight      *uint64             `json:"endHeight,omitempty"`
	EndTime        *uint64             `json:"endTime,omitempty"`
	Denom          string              `json:"denom"`
	NativeBalance  string              `json:"nativeBalance"`
	TokenBalances  []TokenAmountResult `json:"tokenBalances"`
	TokenWhitelist []string            `json:"tokenWhitelist"`
}

type PoolResult struct {
	Denom    string `json:"denom"`
	Native   string `json:"native"`
	Reserved string `json:"reserved"`
}

type ListResult struct {
	IDs []string `json:"ids"`
}

func parseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}

func parseNativeFunds(raw string) (*coverage.Balance, error) {
	amount, err := parseAmount(raw)
	if err != nil {
		return nil, err
	}
	return coverage.NewNativeBalance(amount), nil
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func (p CreateParams) msg() core.CreateMsg {
	return core.CreateMsg{CreateMsg: coverage.CreateMsg{
		ID:             p.ID,
		Recipient:      p.Recipient,
		Title:          p.Title,
		Description:    p.Description,
		EndHeight:      p.EndHeight,
		EndTime:        p.EndTime,
		TokenWhitelist: p.TokenWhitelist,
	}}
}

func (p ReceiveInner) msg() (core.Msg, error) {
	switch p.Type {
	case "create":
		return CreateParams{
			ID:             p.ID,
			Recipient:      p.Recipient,
			Title:          p.Title,
			Description:    p.Description,
			EndHeight:      p.EndHeight,
			EndTime:        p.EndTime,
			TokenWhitelist: p.TokenWhitelist,
		}.msg(), nil
	case "topUp":
		return core.TopUpMsg{ID: p.ID}, nil
	case "provideCoverage":
		return core.ProvideCoverageMsg{}, nil
	default:
		return nil, fmt.Errorf("%w: receive type %q", core.ErrUnsupportedMsg, p.Type)
	}
}

// execute runs msg as the authenticated subject and writes the result.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, req *RPCRequest, funds *coverage.Balance, msg core.Msg) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", nil)
		return
	}
	var payload []byte
	if len(req.Params) > 0 {
		payload = req.Params[0]
	}
	result, err := s.app.Execute(r.Context(), core.Request{
		Caller:  p.Subject,
		Funds:   funds,
		Msg:     msg,
		Payload: payload,
	})
	if err != nil {
		if errors.Is(err, core.ErrOutbox) && result != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), result)
			return
		}
		writeAppError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params CreateParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	funds, err := parseNativeFunds(params.Funds)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid funds", err.Error())
		return
	}
	s.execute(w, r, req, funds, params.msg())
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params IDParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	funds, err := parseNativeFunds(params.Funds)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid funds", err.Error())
		return
	}
	s.execute(w, r, req, funds, core.TopUpMsg{ID: params.ID})
}

func (s *Server) handleSetRecipient(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params SetRecipientParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	s.execute(w, r, req, coverage.NewBalance(), core.SetRecipientMsg{ID: params.ID, Recipient: params.Recipient})
}

// idHandler serves the arbiter and claim methods that only carry an id.
func (s *Server) idHandler(build func(id string) core.Msg) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		var params IDParams
		if err := decodeParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
			return
		}
		funds, err := parseNativeFunds(params.Funds)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid funds", err.Error())
			return
		}
		s.execute(w, r, req, funds, build(params.ID))
	}
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.idHandler(func(id string) core.Msg { return core.ApproveMsg{ID: id} })(w, r, req)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.idHandler(func(id string) core.Msg { return core.RefundMsg{ID: id} })(w, r, req)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.idHandler(func(id string) core.Msg { return core.ClaimMsg{ID: id} })(w, r, req)
}

func (s *Server) handleProvideCoverage(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params FundsParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	funds, err := parseNativeFunds(params.Funds)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid funds", err.Error())
		return
	}
	s.execute(w, r, req, funds, core.ProvideCoverageMsg{})
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ReceiveParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	inner, err := params.Msg.msg()
	if err != nil {
		writeAppError(w, req.ID, err)
		return
	}
	s.execute(w, r, req, coverage.NewBalance(), core.ReceiveMsg{Sender: params.Sender, Amount: amount, Inner: inner})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	ids, err := s.app.List()
	if err != nil {
		writeAppError(w, req.ID, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeResult(w, req.ID, ListResult{IDs: ids})
}

func (s *Server) handleListClaims(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	ids, err := s.app.ListClaims()
	if err != nil {
		writeAppError(w, req.ID, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeResult(w, req.ID, ListResult{IDs: ids})
}

func (s *Server) handleDetails(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params IDParams
	if err := decodeParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	details, err := s.app.Details(params.ID)
	if err != nil {
		writeAppError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatDetails(details))
}

func formatDetails(d *coverage.Details) DetailsResult {
	out := DetailsResult{
		ID:             d.ID,
		Arbiter:        d.Arbiter,
		Recipient:      d.Recipient,
		Source:         d.Source,
		Title:          d.Title,
		Description:    d.Description,
		EndHeight:      d.EndHeight,
		EndTime:        d.EndTime,
		Denom:          d.Denom,
		NativeBalance:  amountString(d.NativeBalance),
		TokenBalances:  make([]TokenAmountResult, 0, len(d.TokenBalances)),
		TokenWhitelist: append([]string{}, d.TokenWhitelist...),
	}
	for _, token := range d.TokenBalances {
		out.TokenBalances = append(out.TokenBalances, TokenAmountResult{Contract: token.Contract, Amount: amountString(token.Amount)})
	}
	return out
}

func (s *Server) handlePool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	view, err := s.app.Pool()
	if err != nil {
		writeAppError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, PoolResult{
		Denom:    view.Denom,
		Native:   amountString(view.Native),
		Reserved: amountString(view.Reserved),
	})
}

func (s *Server) handleNodeInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	info, err := s.app.Info()
	if err != nil {
		writeAppError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, info)
}
