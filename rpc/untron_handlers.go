package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ultrasoundlabs/untron-v1/native/untron"
	"github.com/ultrasoundlabs/untron-v1/observability"
)

const (
	codeUntronInvalidParams = -32021
	codeUntronNotFound      = -32022
	codeUntronRejected      = -32024
)

type transferParams struct {
	Recipient        string `json:"recipient"`
	ChainID          uint64 `json:"chainId,omitempty"`
	BridgeFee        string `json:"bridgeFee,omitempty"`
	DoSwap           bool   `json:"doSwap,omitempty"`
	OutToken         string `json:"outToken,omitempty"`
	MinOutputPerUSDT string `json:"minOutputPerUsdt,omitempty"`
	FixedOutput      bool   `json:"fixedOutput,omitempty"`
	SwapData         string `json:"swapData,omitempty"`
}

type setProviderParams struct {
	Caller       string   `json:"caller"`
	Liquidity    string   `json:"liquidity"`
	Rate         string   `json:"rate"`
	MinOrderSize string   `json:"minOrderSize"`
	MinDeposit   string   `json:"minDeposit"`
	Receivers    []string `json:"receivers"`
}

type createOrderParams struct {
	Creator  string         `json:"creator"`
	Provider string         `json:"provider"`
	Receiver string         `json:"receiver"`
	Size     string         `json:"size"`
	Rate     string         `json:"rate"`
	Transfer transferParams `json:"transfer"`
}

type changeOrderParams struct {
	Caller   string         `json:"caller"`
	ID       string         `json:"id"`
	Transfer transferParams `json:"transfer"`
}

type orderActorParams struct {
	Caller string `json:"caller"`
	ID     string `json:"id"`
}

type fulfillParams struct {
	Caller string   `json:"caller"`
	IDs    []string `json:"ids"`
	Total  string   `json:"total"`
}

type closeOrdersParams struct {
	Caller       string `json:"caller"`
	Proof        string `json:"proof"`
	PublicValues string `json:"publicValues"`
}

type setCoreVariablesParams struct {
	Caller               string `json:"caller"`
	BlockID              string `json:"blockId"`
	ActionChainTip       string `json:"actionChainTip"`
	LatestIncludedAction string `json:"latestIncludedAction"`
	StateHash            string `json:"stateHash"`
	MaxOrderSize         string `json:"maxOrderSize"`
	RequiredCollateral   string `json:"requiredCollateral"`
	OrderTTLMillis       uint64 `json:"orderTtlMillis"`
}

type setFeesVariablesParams struct {
	Caller     string `json:"caller"`
	RelayerFee uint64 `json:"relayerFee"`
	FeePoint   string `json:"feePoint"`
}

type setZKVariablesParams struct {
	Caller         string `json:"caller"`
	TrustedRelayer string `json:"trustedRelayer"`
}

type mintParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type addressParams struct {
	Address string `json:"address"`
}

type receiverParams struct {
	Receiver string `json:"receiver"`
}

type idListParams struct {
	IDs []string `json:"ids"`
}

type orderIDResult struct {
	ID string `json:"id"`
}

type closeOrdersResult struct {
	Closed      int    `json:"closed"`
	TotalInflow string `json:"totalInflow"`
	TotalFee    string `json:"totalFee"`
}

type providerJSON struct {
	Address      string   `json:"address"`
	Liquidity    string   `json:"liquidity"`
	Rate         string   `json:"rate"`
	MinOrderSize string   `json:"minOrderSize"`
	MinDeposit   string   `json:"minDeposit"`
	Receivers    []string `json:"receivers"`
}

type transferJSON struct {
	Recipient        string `json:"recipient"`
	ChainID          uint64 `json:"chainId,omitempty"`
	BridgeFee        string `json:"bridgeFee,omitempty"`
	DoSwap           bool   `json:"doSwap,omitempty"`
	OutToken         string `json:"outToken,omitempty"`
	MinOutputPerUSDT string `json:"minOutputPerUsdt,omitempty"`
	FixedOutput      bool   `json:"fixedOutput,omitempty"`
	SwapData         string `json:"swapData,omitempty"`
}

type orderJSON struct {
	ID          string       `json:"id"`
	Timestamp   int64        `json:"timestamp"`
	Creator     string       `json:"creator"`
	Provider    string       `json:"provider"`
	Receiver    string       `json:"receiver"`
	Size        string       `json:"size"`
	Rate        string       `json:"rate"`
	MinDeposit  string       `json:"minDeposit"`
	Collateral  string       `json:"collateral"`
	IsFulfilled bool         `json:"isFulfilled"`
	Transfer    transferJSON `json:"transfer"`
}

type receiverJSON struct {
	Receiver string `json:"receiver"`
	Owner    string `json:"owner,omitempty"`
	Order    string `json:"order,omitempty"`
	Busy     bool   `json:"busy"`
}

type chainStateJSON struct {
	ActionTip            string `json:"actionTip"`
	LatestIncludedAction string `json:"latestIncludedAction"`
	StateHash            string `json:"stateHash"`
	BlockID              string `json:"blockId"`
}

type variablesJSON struct {
	MaxOrderSize       string `json:"maxOrderSize"`
	RequiredCollateral string `json:"requiredCollateral"`
	OrderTTLMillis     uint64 `json:"orderTtlMillis"`
	RelayerFee         uint64 `json:"relayerFee"`
	FeePoint           string `json:"feePoint"`
	Owner              string `json:"owner"`
}

type balanceJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type fulfillerTotalJSON struct {
	Expense string `json:"expense"`
	Profit  string `json:"profit"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) invalidParams(w http.ResponseWriter, req *RPCRequest, err error) int {
	writeError(w, http.StatusBadRequest, req.ID, codeUntronInvalidParams, "invalid_params", err.Error())
	return http.StatusBadRequest
}

func (s *Server) engineError(w http.ResponseWriter, req *RPCRequest, err error) int {
	writeError(w, http.StatusUnprocessableEntity, req.ID, codeUntronRejected, "rejected", err.Error())
	return http.StatusUnprocessableEntity
}

func (s *Server) handleSetProvider(w http.ResponseWriter, req *RPCRequest) int {
	var params setProviderParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	liquidity, err := parseBigInt("liquidity", params.Liquidity)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	rateValue, err := parseBigInt("rate", params.Rate)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	minOrderSize, err := parseBigInt("minOrderSize", params.MinOrderSize)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	minDeposit, err := parseBigInt("minDeposit", params.MinDeposit)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	receivers := make([]untron.TronAddress, 0, len(params.Receivers))
	for _, encoded := range params.Receivers {
		receiver, err := parseReceiver(encoded)
		if err != nil {
			return s.invalidParams(w, req, err)
		}
		receivers = append(receivers, receiver)
	}
	if err := s.engine.SetProvider(caller, liquidity, rateValue, minOrderSize, minDeposit, receivers); err != nil {
		return s.engineError(w, req, err)
	}
	observability.EngineMetrics().RecordLiquidity(params.Caller, liquidity)
	writeResult(w, req.ID, true)
	return http.StatusOK
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, req *RPCRequest) int {
	var params createOrderParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	creator, err := parseAddr(params.Creator)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	provider, err := parseAddr(params.Provider)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	receiver, err := parseReceiver(params.Receiver)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	size, err := parseBigInt("size", params.Size)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	rateValue, err := parseBigInt("rate", params.Rate)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	transfer, err := parseTransfer(params.Transfer)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	id, err := s.engine.CreateOrder(creator, provider, receiver, size, rateValue, transfer)
	if err != nil {
		return s.engineError(w, req, err)
	}
	observability.EngineMetrics().RecordOrder("created")
	writeResult(w, req.ID, orderIDResult{ID: hex.EncodeToString(id[:])})
	return http.StatusOK
}

func (s *Server) handleChangeOrder(w http.ResponseWriter, req *RPCRequest) int {
	var params changeOrderParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	id, err := parseHash("id", params.ID)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	transfer, err := parseTransfer(params.Transfer)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	if err := s.engine.ChangeOrder(caller, id, transfer); err != nil {
		return s.engineError(w, req, err)
	}
	observability.EngineMetrics().RecordOrder("changed")
	writeResult(w, req.ID, true)
	return http.StatusOK
}

func (s *Server) handleStopOrder(w http.ResponseWriter, req *RPCRequest) int {
	var params orderActorParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	id, err := parseHash("id", params.ID)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	if err := s.engine.StopOrder(caller, id); err != nil {
		return s.engineError(w, req, err)
	}
	observability.EngineMetrics().RecordOrder("stopped")
	writeResult(w, req.ID, true)
	return http.StatusOK
}

func (s *Server) handleFulfill(w http.ResponseWriter, req *RPCRequest) int {
	var params fulfillParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	ids, err := parseHashList(params.IDs)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	total, err := parseBigInt("total", params.Total)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	if err := s.engine.Fulfill(caller, ids, total); err != nil {
		return s.engineError(w, req, err)
	}
	observability.EngineMetrics().RecordOrder("fulfilled")
	writeResult(w, req.ID, true)
	return http.StatusOK
}

func (s *Server) handleCloseOrders(w http.ResponseWriter, req *RPCRequest) int {
	var params closeOrdersParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	proof, err := parseHexBytes("proof", params.Proof)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	publicValues, err := parseHexBytes("publicValues", params.PublicValues)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	result, err := s.engine.CloseOrders(caller, proof, publicValues)
	if err != nil {
		observability.EngineMetrics().RecordSettlement(false, nil, nil)
		return s.engineError(w, req, err)
	}
	observability.EngineMetrics().RecordSettlement(true, result.TotalInflow, result.TotalFee)
	observability.EngineMetrics().RecordOrder("closed")
	writeResult(w, req.ID, closeOrdersResult{
		Closed:      result.Closed,
		TotalInflow: result.TotalInflow.String(),
		TotalFee:    result.TotalFee.String(),
	})
	return http.StatusOK
}

func (s *Server) handleSetCoreVariables(w http.ResponseWriter, req *RPCRequest) int {
	var params setCoreVariablesParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	blockID, err := parseHash("blockId", params.BlockID)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	tip, err := parseHash("actionChainTip", params.ActionChainTip)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	latest, err := parseHash("latestIncludedAction", params.LatestIncludedAction)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	stateHash, err := parseHash("stateHash", params.StateHash)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	maxOrderSize, err := parseBigInt("maxOrderSize", params.MaxOrderSize)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	collateral, err := parseBigInt("requiredCollateral", params.RequiredCollateral)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	vars := untron.CoreVariables{
		MaxOrderSize:       maxOrderSize,
		RequiredCollateral: collateral,
		OrderTTLMillis:     params.OrderTTLMillis,
	}
	if err := s.engine.SetCoreVariables(caller, blockID, tip, latest, stateHash, vars); err != nil {
		return s.engineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return http.StatusOK
}

func (s *Server) handleSetFeesVariables(w http.ResponseWriter, req *RPCRequest) int {
	var params setFeesVariablesParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	feePoint, err := parseBigInt("feePoint", params.FeePoint)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	if err := s.engine.SetFeesVariables(caller, params.RelayerFee, feePoint); err != nil {
		return s.engineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return http.StatusOK
}

func (s *Server) handleSetZKVariables(w http.ResponseWriter, req *RPCRequest) int {
	var params setZKVariablesParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	relayer, err := parseAddr(params.TrustedRelayer)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	// Verifier capabilities are wired at node start, not over RPC. Rotating
	// the relayer here returns the engine to trusted-relayer authentication.
	if err := s.engine.SetZKVariables(caller, relayer, nil); err != nil {
		return s.engineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return http.StatusOK
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) int {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	caller, err := parseAddr(params.Caller)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	to, err := parseAddr(params.To)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	amount, err := parseBigInt("amount", params.Amount)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	if err := s.engine.Mint(caller, to, amount); err != nil {
		return s.engineError(w, req, err)
	}
	writeResult(w, req.ID, true)
	return http.StatusOK
}

func (s *Server) handleCalculateFulfillerTotal(w http.ResponseWriter, req *RPCRequest) int {
	var params idListParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	ids, err := parseHashList(params.IDs)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	expense, profit, err := s.engine.CalculateFulfillerTotal(ids)
	if err != nil {
		return s.engineError(w, req, err)
	}
	writeResult(w, req.ID, fulfillerTotalJSON{Expense: expense.String(), Profit: profit.String()})
	return http.StatusOK
}

func (s *Server) handleGetProvider(w http.ResponseWriter, req *RPCRequest) int {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	addr, err := parseAddr(params.Address)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	provider, ok := s.engine.Provider(addr)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeUntronNotFound, "not_found", "provider not registered")
		return http.StatusNotFound
	}
	receivers := make([]string, 0, len(provider.Receivers))
	for _, receiver := range provider.Receivers {
		receivers = append(receivers, hex.EncodeToString(receiver[:]))
	}
	writeResult(w, req.ID, providerJSON{
		Address:      hex.EncodeToString(provider.Address[:]),
		Liquidity:    provider.Liquidity.String(),
		Rate:         provider.Rate.String(),
		MinOrderSize: provider.MinOrderSize.String(),
		MinDeposit:   provider.MinDeposit.String(),
		Receivers:    receivers,
	})
	return http.StatusOK
}

func (s *Server) handleGetOrder(w http.ResponseWriter, req *RPCRequest) int {
	var params struct {
		ID string `json:"id"`
	}
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	id, err := parseHash("id", params.ID)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	order, ok := s.engine.Order(id)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeUntronNotFound, "not_found", "order not found")
		return http.StatusNotFound
	}
	writeResult(w, req.ID, orderToJSON(order))
	return http.StatusOK
}

func (s *Server) handleGetReceiver(w http.ResponseWriter, req *RPCRequest) int {
	var params receiverParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	receiver, err := parseReceiver(params.Receiver)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	result := receiverJSON{Receiver: hex.EncodeToString(receiver[:])}
	if owner, ok := s.engine.ReceiverOwner(receiver); ok {
		result.Owner = hex.EncodeToString(owner[:])
	}
	if id, ok := s.engine.ReceiverBusy(receiver); ok {
		result.Order = hex.EncodeToString(id[:])
		result.Busy = true
	}
	writeResult(w, req.ID, result)
	return http.StatusOK
}

func (s *Server) handleGetChainState(w http.ResponseWriter, req *RPCRequest) int {
	chain := s.engine.ChainState()
	writeResult(w, req.ID, chainStateJSON{
		ActionTip:            hex.EncodeToString(chain.ActionTip[:]),
		LatestIncludedAction: hex.EncodeToString(chain.LatestIncludedAction[:]),
		StateHash:            hex.EncodeToString(chain.StateHash[:]),
		BlockID:              hex.EncodeToString(chain.BlockID[:]),
	})
	return http.StatusOK
}

func (s *Server) handleGetVariables(w http.ResponseWriter, req *RPCRequest) int {
	core := s.engine.CoreVariables()
	fees := s.engine.FeeVariables()
	owner := s.engine.Owner()
	writeResult(w, req.ID, variablesJSON{
		MaxOrderSize:       core.MaxOrderSize.String(),
		RequiredCollateral: core.RequiredCollateral.String(),
		OrderTTLMillis:     core.OrderTTLMillis,
		RelayerFee:         fees.RelayerFee,
		FeePoint:           fees.FeePoint.String(),
		Owner:              hex.EncodeToString(owner[:]),
	})
	return http.StatusOK
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) int {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return s.invalidParams(w, req, err)
	}
	addr, err := parseAddr(params.Address)
	if err != nil {
		return s.invalidParams(w, req, err)
	}
	balance := s.engine.Balance(addr)
	writeResult(w, req.ID, balanceJSON{
		Address: hex.EncodeToString(addr[:]),
		Balance: balance.String(),
	})
	return http.StatusOK
}

func orderToJSON(order *untron.Order) orderJSON {
	result := orderJSON{
		ID:          hex.EncodeToString(order.ID[:]),
		Timestamp:   order.Timestamp,
		Creator:     hex.EncodeToString(order.Creator[:]),
		Provider:    hex.EncodeToString(order.Provider[:]),
		Receiver:    hex.EncodeToString(order.Receiver[:]),
		Size:        order.Size.String(),
		Rate:        order.Rate.String(),
		MinDeposit:  order.MinDeposit.String(),
		Collateral:  order.Collateral.String(),
		IsFulfilled: order.IsFulfilled,
		Transfer: transferJSON{
			Recipient:   hex.EncodeToString(order.Transfer.Recipient[:]),
			ChainID:     order.Transfer.ChainID,
			DoSwap:      order.Transfer.DoSwap,
			FixedOutput: order.Transfer.FixedOutput,
		},
	}
	if order.Transfer.BridgeFee != nil && order.Transfer.BridgeFee.Sign() > 0 {
		result.Transfer.BridgeFee = order.Transfer.BridgeFee.String()
	}
	if order.Transfer.MinOutputPerUSDT != nil && order.Transfer.MinOutputPerUSDT.Sign() > 0 {
		result.Transfer.MinOutputPerUSDT = order.Transfer.MinOutputPerUSDT.String()
	}
	if order.Transfer.DoSwap {
		result.Transfer.OutToken = hex.EncodeToString(order.Transfer.OutToken[:])
	}
	if len(order.Transfer.SwapData) > 0 {
		result.Transfer.SwapData = hex.EncodeToString(order.Transfer.SwapData)
	}
	return result
}

// --- parsing helpers ---

func parseAddr(value string) ([20]byte, error) {
	raw, err := parseHexBytes("address", value)
	if err != nil {
		return [20]byte{}, err
	}
	if len(raw) != 20 {
		return [20]byte{}, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
	}
	var addr [20]byte
	copy(addr[:], raw)
	return addr, nil
}

func parseReceiver(value string) (untron.TronAddress, error) {
	raw, err := parseHexBytes("receiver", value)
	if err != nil {
		return untron.TronAddress{}, err
	}
	if len(raw) != 21 {
		return untron.TronAddress{}, fmt.Errorf("receiver must be 21 bytes, got %d", len(raw))
	}
	var receiver untron.TronAddress
	copy(receiver[:], raw)
	return receiver, nil
}

func parseHash(name, value string) ([32]byte, error) {
	raw, err := parseHexBytes(name, value)
	if err != nil {
		return [32]byte{}, err
	}
	if len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("%s must be 32 bytes, got %d", name, len(raw))
	}
	var hash [32]byte
	copy(hash[:], raw)
	return hash, nil
}

func parseHashList(values []string) ([][32]byte, error) {
	ids := make([][32]byte, 0, len(values))
	for _, value := range values {
		id, err := parseHash("id", value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseHexBytes(name, value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid %s hex: %w", name, err)
	}
	return raw, nil
}

func parseBigInt(name, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s amount %q", name, value)
	}
	return parsed, nil
}

func parseTransfer(params transferParams) (untron.Transfer, error) {
	recipient, err := parseAddr(params.Recipient)
	if err != nil {
		return untron.Transfer{}, fmt.Errorf("transfer recipient: %w", err)
	}
	transfer := untron.Transfer{
		Recipient:   recipient,
		ChainID:     params.ChainID,
		DoSwap:      params.DoSwap,
		FixedOutput: params.FixedOutput,
	}
	if transfer.BridgeFee, err = parseBigInt("bridgeFee", params.BridgeFee); err != nil {
		return untron.Transfer{}, err
	}
	if transfer.MinOutputPerUSDT, err = parseBigInt("minOutputPerUsdt", params.MinOutputPerUSDT); err != nil {
		return untron.Transfer{}, err
	}
	if params.OutToken != "" {
		if transfer.OutToken, err = parseAddr(params.OutToken); err != nil {
			return untron.Transfer{}, fmt.Errorf("transfer outToken: %w", err)
		}
	}
	if params.SwapData != "" {
		if transfer.SwapData, err = parseHexBytes("swapData", params.SwapData); err != nil {
			return untron.Transfer{}, err
		}
	}
	return transfer, nil
}
