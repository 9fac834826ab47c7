package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"peershield/core/events"
	"peershield/core/state"
	"peershield/core/types"
	"peershield/crypto"
	"peershield/native/coverage"
	"peershield/observability/metrics"
	"peershield/observability/otel"
	"peershield/services/outbox"
	"peershield/storage"
)

const (
	// ContractName identifies the state owned by this application.
	ContractName = "peershield"
	// ContractVersion is recorded next to the schema version on start-up.
	ContractVersion = "0.1.0"
)

// ErrOutbox marks a request whose state change was committed but whose
// transfers could not be queued.
var ErrOutbox = errors.New("core: transfers not queued")

// TransferSink receives the transfer instructions of committed requests.
type TransferSink interface {
	Enqueue(ctx context.Context, batch outbox.Batch, transfers []coverage.Transfer) ([]outbox.Entry, error)
}

// Options configures an Application.
type Options struct {
	Engine    coverage.Config
	Validator coverage.AddressValidator
	Sink      TransferSink
	Logger    *slog.Logger
	Metrics   *metrics.CoverageMetrics
	// Clock supplies the block time. Defaults to time.Now.
	Clock        func() time.Time
	AllowMigrate bool
}

// Request is one execute call.
type Request struct {
	Caller string
	Funds  *coverage.Balance
	Msg    Msg
	// Payload is the raw encoded request, used for the request hash.
	Payload []byte
}

// Result describes a committed request.
type Result struct {
	RequestID   string              `json:"requestId"`
	RequestHash string              `json:"requestHash"`
	Height      uint64              `json:"height"`
	Events      []types.Event       `json:"events"`
	Transfers   []coverage.Transfer `json:"-"`
	Queued      []outbox.Entry      `json:"queued,omitempty"`
}

// NodeInfo summarises the running application.
type NodeInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	SchemaVersion uint32 `json:"schemaVersion"`
	Height        uint64 `json:"height"`
	Arbiter       string `json:"arbiter"`
	NativeDenom   string `json:"nativeDenom"`
	PoolPolicy    string `json:"poolPolicy"`
}

// Application applies requests to coverage state one at a time. Every
// request runs against a fresh overlay that is committed as one storage
// batch, so a failing request leaves no trace.
type Application struct {
	mu        sync.RWMutex
	db        storage.Database
	cfg       coverage.Config
	validator coverage.AddressValidator
	sink      TransferSink
	logger    *slog.Logger
	metrics   *metrics.CoverageMetrics
	clock     func() time.Time
	info      state.ContractInfo
}

// NewApplication opens the application on db, recording the contract info on
// a fresh database.
func NewApplication(db storage.Database, opts Options) (*Application, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if opts.Engine.Arbiter == "" {
		return nil, fmt.Errorf("core: arbiter required")
	}
	app := &Application{
		db:        db,
		cfg:       opts.Engine,
		validator: opts.Validator,
		sink:      opts.Sink,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		info: state.ContractInfo{
			Name:          ContractName,
			Version:       ContractVersion,
			SchemaVersion: state.StateVersion,
		},
	}
	if app.logger == nil {
		app.logger = slog.Default()
	}
	if app.clock == nil {
		app.clock = time.Now
	}
	mgr := state.NewManager(db)
	if err := mgr.EnsureContractInfo(app.info, opts.AllowMigrate); err != nil {
		return nil, err
	}
	if err := mgr.Commit(); err != nil {
		return nil, err
	}
	app.refreshBook(mgr)
	return app, nil
}

func (a *Application) newEngine(mgr *state.Manager, emitter events.Emitter) *coverage.Engine {
	engine := coverage.NewEngine(a.cfg)
	engine.SetState(mgr)
	engine.SetEmitter(emitter)
	engine.SetValidator(a.validator)
	return engine
}

func (a *Application) addressValidator() coverage.AddressValidator {
	if a.validator != nil {
		return a.validator
	}
	return passthroughValidator{}
}

// canonicalCaller returns the validator's canonical form of caller so that
// authorization compares like with like. Callers that do not validate are
// passed through unchanged and rejected by the engine where it matters.
func (a *Application) canonicalCaller(caller string) string {
	if canonical, err := a.addressValidator().ValidateAddress(caller); err == nil {
		return canonical
	}
	return caller
}

type passthroughValidator struct{}

func (passthroughValidator) ValidateAddress(addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}
	return addr, nil
}

// Execute applies req atomically. On error no state, event or transfer of
// the request survives. A non-nil Result together with ErrOutbox means the
// state change committed but the transfers must be re-queued by the operator.
func (a *Application) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Msg == nil {
		return nil, fmt.Errorf("%w: empty message", ErrUnsupportedMsg)
	}
	method := req.Msg.Route()
	ctx, span := otel.Tracer().Start(ctx, "coverage."+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("coverage.method", method),
		attribute.String("coverage.caller", req.Caller),
	)
	started := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	result, err := a.apply(ctx, method, req)
	outcome := "ok"
	if err != nil && !errors.Is(err, ErrOutbox) {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn("request rejected", "method", method, "caller", req.Caller, "error", err)
	}
	a.metrics.ObserveRequest(method, outcome, time.Since(started))
	return result, err
}

func (a *Application) apply(ctx context.Context, method string, req Request) (*Result, error) {
	mgr := state.NewManager(a.db)
	parent, err := mgr.Height()
	if err != nil {
		return nil, err
	}
	env := coverage.Env{Height: parent + 1, Time: uint64(a.clock().Unix())}

	recorder := &events.Recorder{}
	engine := a.newEngine(mgr, recorder)
	transfers, err := dispatch(engine, a.addressValidator(), a.canonicalCaller(req.Caller), req.Funds, req.Msg, env)
	if err != nil {
		mgr.Discard()
		return nil, err
	}
	if err := mgr.SetHeight(env.Height); err != nil {
		mgr.Discard()
		return nil, err
	}
	if err := mgr.Commit(); err != nil {
		return nil, err
	}

	hash := crypto.RequestHash(env.Height, method, req.Payload)
	result := &Result{
		RequestID:   uuid.NewString(),
		RequestHash: "0x" + hex.EncodeToString(hash[:]),
		Height:      env.Height,
		Transfers:   transfers,
	}
	for _, evt := range recorder.Events() {
		payload, ok := evt.(interface{ Event() *types.Event })
		if !ok || payload.Event() == nil {
			continue
		}
		result.Events = append(result.Events, *payload.Event())
	}
	for _, tr := range transfers {
		a.metrics.ObserveTransfer(tr.Kind.String())
	}
	a.refreshBook(state.NewManager(a.db))
	a.logger.Info("request applied",
		"method", method,
		"caller", req.Caller,
		"height", env.Height,
		"request_id", result.RequestID,
		"transfers", len(transfers))

	if a.sink != nil && len(transfers) > 0 {
		queued, err := a.sink.Enqueue(ctx, outbox.Batch{
			RequestID:   result.RequestID,
			RequestHash: result.RequestHash,
			Height:      env.Height,
		}, transfers)
		if err != nil {
			a.logger.Error("transfer outbox enqueue failed", "request_id", result.RequestID, "error", err)
			return result, fmt.Errorf("%w: %v", ErrOutbox, err)
		}
		result.Queued = queued
	}
	return result, nil
}

func (a *Application) refreshBook(mgr *state.Manager) {
	if a.metrics == nil {
		return
	}
	engine := a.newEngine(mgr, nil)
	pool, err := engine.Pool()
	if err != nil {
		return
	}
	ids, err := engine.List()
	if err != nil {
		return
	}
	claims, err := engine.ListClaims()
	if err != nil {
		return
	}
	a.metrics.SetBook(approxFloat(pool.Native), approxFloat(pool.Reserved), len(ids), len(claims))
}

func approxFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}

func (a *Application) query(fn func(*coverage.Engine) error) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fn(a.newEngine(state.NewManager(a.db), nil))
}

// List returns every live agreement id.
func (a *Application) List() ([]string, error) {
	var ids []string
	err := a.query(func(e *coverage.Engine) (err error) {
		ids, err = e.List()
		return err
	})
	return ids, err
}

// Details returns the projection of agreement id.
func (a *Application) Details(id string) (*coverage.Details, error) {
	var details *coverage.Details
	err := a.query(func(e *coverage.Engine) (err error) {
		details, err = e.Details(id)
		return err
	})
	return details, err
}

// ListClaims returns the ids of agreements with an open claim.
func (a *Application) ListClaims() ([]string, error) {
	var ids []string
	err := a.query(func(e *coverage.Engine) (err error) {
		ids, err = e.ListClaims()
		return err
	})
	return ids, err
}

// Pool returns the coverage pool view.
func (a *Application) Pool() (*coverage.PoolView, error) {
	var view *coverage.PoolView
	err := a.query(func(e *coverage.Engine) (err error) {
		view, err = e.Pool()
		return err
	})
	return view, err
}

// Info reports the application identity and current height.
func (a *Application) Info() (*NodeInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	mgr := state.NewManager(a.db)
	height, err := mgr.Height()
	if err != nil {
		return nil, err
	}
	info := a.info
	if stored, ok, err := mgr.ContractInfo(); err != nil {
		return nil, err
	} else if ok {
		info = *stored
	}
	return &NodeInfo{
		Name:          info.Name,
		Version:       info.Version,
		SchemaVersion: info.SchemaVersion,
		Height:        height,
		Arbiter:       a.cfg.Arbiter,
		NativeDenom:   a.cfg.NativeDenom,
		PoolPolicy:    a.cfg.Policy.String(),
	}, nil
}
