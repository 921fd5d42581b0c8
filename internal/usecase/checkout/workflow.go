package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// Observer は結果ごとの件数と所要時間を受け取る（metrics用）。
type Observer interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveCheckout(string, time.Duration) {}

// outcome ラベル（成功系）
const (
	OutcomePlaced   = "placed"
	OutcomeReplayed = "replayed"
)

type Config struct {
	// Txの期限。0なら期限なし。
	Timeout     time.Duration
	EventsTopic string
}

type Input struct {
	UserID          int64
	ShippingAddress string
	PaymentMethod   string
	IdempotencyKey  string
}

type Result struct {
	OrderID     int64
	TotalAmount decimal.Decimal
	// false なら注文は成立しているがカートが残っている（次の読み取りで補修）
	CartCleared bool
	// 同じ Idempotency-Key の既存注文を返した
	Replayed bool
}

// Workflow は 在庫確認 → 注文作成 を1つのTxで行い、commit後にカートを空にする。
type Workflow struct {
	tx           repo.TransactionManager
	validator    *StockValidator
	materializer *OrderMaterializer
	reconciler   *CartReconciler
	timeout      time.Duration
	logger       *slog.Logger
	observer     Observer
}

func NewWorkflow(tx repo.TransactionManager, reconciler *CartReconciler, cfg Config, logger *slog.Logger, observer Observer) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Workflow{
		tx:           tx,
		validator:    NewStockValidator(),
		materializer: NewOrderMaterializer(cfg.EventsTopic),
		reconciler:   reconciler,
		timeout:      cfg.Timeout,
		logger:       logger,
		observer:     observer,
	}
}

// PlaceOrder は失敗時に何も書かない。返るエラーは常に *Error。
func (w *Workflow) PlaceOrder(ctx context.Context, in Input) (res Result, err error) {
	start := time.Now()
	defer func() {
		w.observer.ObserveCheckout(outcomeOf(res, err), time.Since(start))
	}()

	if in.UserID <= 0 {
		return Result{}, validationError("invalid user")
	}
	details, err := ParseDetails(in.ShippingAddress, in.PaymentMethod, in.IdempotencyKey)
	if err != nil {
		return Result{}, err
	}

	txCtx, cancel := w.withTimeout(ctx)
	defer cancel()

	var (
		placed   Placement
		replayed *Result
	)
	err = w.tx.WithinTx(txCtx, func(repos repo.TxRepos) error {
		if details.IdempotencyKey != "" {
			prev, found, err := repos.Orders().FindByIdempotencyKey(txCtx, in.UserID, details.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				replayed = replayResult(prev.ID, prev.TotalAmount, prev.CartReconciled)
				return nil
			}
		}

		lines, err := w.validator.Validate(txCtx, repos, in.UserID)
		if err != nil {
			return err
		}
		placed, err = w.materializer.Materialize(txCtx, repos, in.UserID, lines, details)
		return err
	})
	if err != nil {
		// 同じキーで同時に確定された → 先に入った方を返す
		// （先の注文がカートを空にした後なら EmptyCart で落ちてくる）
		if details.IdempotencyKey != "" && (errors.Is(err, repo.ErrDuplicate) || errors.Is(err, ErrEmptyCart)) {
			if r, ok := w.lookupReplay(ctx, in.UserID, details.IdempotencyKey); ok {
				return *r, nil
			}
		}
		return Result{}, classify(txCtx, err)
	}
	if replayed != nil {
		return *replayed, nil
	}

	res = Result{OrderID: placed.OrderID, TotalAmount: placed.TotalAmount, CartCleared: true}

	// commit済み。ここから先の失敗で注文は取り消さない。
	clearCtx, cancelClear := w.withTimeout(context.WithoutCancel(ctx))
	defer cancelClear()
	if err := w.reconciler.Clear(clearCtx, in.UserID, placed); err != nil {
		w.logger.ErrorContext(ctx, "cart reconciliation failed",
			slog.Int64("user_id", in.UserID),
			slog.Int64("order_id", placed.OrderID),
			slog.String("error", err.Error()),
		)
		res.CartCleared = false
	}
	return res, nil
}

func (w *Workflow) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.timeout)
}

func (w *Workflow) lookupReplay(ctx context.Context, userID int64, key string) (*Result, bool) {
	var out *Result
	err := w.tx.WithinTx(ctx, func(repos repo.TxRepos) error {
		prev, found, err := repos.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil || !found {
			return err
		}
		out = replayResult(prev.ID, prev.TotalAmount, prev.CartReconciled)
		return nil
	})
	if err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func replayResult(orderID int64, total decimal.Decimal, cartCleared bool) *Result {
	return &Result{OrderID: orderID, TotalAmount: total, CartCleared: cartCleared, Replayed: true}
}

// classify はTxの失敗を Kind に振り分ける。
func classify(ctx context.Context, err error) error {
	if ce, ok := AsError(err); ok {
		return ce
	}
	switch {
	case errors.Is(err, repo.ErrTxTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		ctx.Err() != nil:
		return &Error{Kind: KindTransactionTimeout, Err: err}
	case errors.Is(err, repo.ErrSerialization):
		return &Error{Kind: KindTransactionConflict, Err: err}
	default:
		return &Error{Kind: KindPersistence, Err: err}
	}
}

func outcomeOf(res Result, err error) string {
	if err != nil {
		if ce, ok := AsError(err); ok {
			return string(ce.Kind)
		}
		return string(KindPersistence)
	}
	if res.Replayed {
		return OutcomeReplayed
	}
	return OutcomePlaced
}
