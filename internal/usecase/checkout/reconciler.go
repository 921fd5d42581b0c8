package checkout

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"golang.org/x/sync/singleflight"
)

// CartCache はカート表示用キャッシュ。カートを消したら破棄する。
type CartCache interface {
	Invalidate(ctx context.Context, userID int64) error
}

// CartReconciler は確定済みの注文に合わせてカートを空にする。
// 注文のTxとは別のTxで動くので、失敗しても注文は残る。
type CartReconciler struct {
	tx     repo.TransactionManager
	cache  CartCache
	logger *slog.Logger
	group  singleflight.Group
}

// cache は nil でもよい。
func NewCartReconciler(tx repo.TransactionManager, cache CartCache, logger *slog.Logger) *CartReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartReconciler{tx: tx, cache: cache, logger: logger}
}

// Clear はユーザーのカート行を全部消し、注文を補修済みにする。
// commit 済みの注文に対してだけ呼ぶこと。
func (r *CartReconciler) Clear(ctx context.Context, userID int64, placed Placement) error {
	var removed int64
	err := r.tx.WithinTx(ctx, func(repos repo.TxRepos) error {
		n, err := repos.CartItems().DeleteAllByUserID(ctx, userID)
		if err != nil {
			return err
		}
		removed = n
		return repos.Orders().MarkCartReconciled(ctx, placed.OrderID)
	})
	if err != nil {
		return &Error{Kind: KindCartReconciliation, Err: err}
	}

	r.logger.DebugContext(ctx, "cart cleared",
		slog.Int64("user_id", userID),
		slog.Int64("order_id", placed.OrderID),
		slog.Int64("removed", removed),
	)
	r.invalidate(ctx, userID)
	return nil
}

// Repair は Clear に失敗した注文が残っていれば、そのカート行を消す。
// 同じユーザーへの同時呼び出しは1回にまとめる。
func (r *CartReconciler) Repair(ctx context.Context, userID int64) error {
	_, err, _ := r.group.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		return nil, r.repair(ctx, userID)
	})
	return err
}

func (r *CartReconciler) repair(ctx context.Context, userID int64) error {
	var (
		repaired []int64
		removed  int64
	)
	err := r.tx.WithinTx(ctx, func(repos repo.TxRepos) error {
		orders, err := repos.Orders().ListUnreconciledByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}

		cutoff, ids := staleCutoff(orders)
		n, err := settleStale(ctx, repos, userID, cutoff, ids)
		if err != nil {
			return err
		}
		repaired, removed = ids, n
		return nil
	})
	if err != nil {
		return &Error{Kind: KindCartReconciliation, Err: err}
	}
	if len(repaired) == 0 {
		return nil
	}

	r.logger.InfoContext(ctx, "cart repaired after unreconciled order",
		slog.Int64("user_id", userID),
		slog.Any("order_ids", repaired),
		slog.Int64("removed", removed),
	)
	r.invalidate(ctx, userID)
	return nil
}

// キャッシュはTTLで消えるので失敗はログだけ
func (r *CartReconciler) invalidate(ctx context.Context, userID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.logger.WarnContext(ctx, "cart cache invalidate failed",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// staleCutoff は未補修の注文のうち一番新しい created_at と、その注文idを返す。
// この時刻以前に更新されたカート行は、どれかの注文で買われている。
func staleCutoff(orders []model.Order) (time.Time, []int64) {
	var cutoff time.Time
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		if o.CreatedAt.After(cutoff) {
			cutoff = o.CreatedAt
		}
	}
	return cutoff, ids
}

// 注文より後に入れた・変えた行は残す
func settleStale(ctx context.Context, repos repo.TxRepos, userID int64, cutoff time.Time, orderIDs []int64) (int64, error) {
	n, err := repos.CartItems().DeleteStaleByUserID(ctx, userID, cutoff)
	if err != nil {
		return 0, err
	}
	if err := repos.Orders().MarkCartReconciled(ctx, orderIDs...); err != nil {
		return 0, err
	}
	return n, nil
}
