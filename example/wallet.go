package example

import (
	"context"
	"errors"
	"fmt"

	expdao "github.com/xiaoxuxiansheng/ordertcc/example/dao"
	"github.com/xiaoxuxiansheng/ordertcc/log"
)

const (
	directionCredit = "credit"
	directionDebit  = "debit"
)

// WalletSettler 金币钱包，以订单号 + 方向作为流水唯一键保证幂等
type WalletSettler struct {
	dao *expdao.WalletDAO
}

func NewWalletSettler(dao *expdao.WalletDAO) *WalletSettler {
	return &WalletSettler{
		dao: dao,
	}
}

func (w *WalletSettler) CreditBalance(ctx context.Context, userID uint64, coins int64, referenceOrderNo, memo string) error {
	return w.apply(ctx, directionCredit, userID, coins, referenceOrderNo, memo)
}

func (w *WalletSettler) DebitBalance(ctx context.Context, userID uint64, coins int64, referenceOrderNo, memo string) error {
	return w.apply(ctx, directionDebit, userID, coins, referenceOrderNo, memo)
}

func (w *WalletSettler) apply(ctx context.Context, direction string, userID uint64, coins int64, referenceOrderNo, memo string) error {
	if coins <= 0 {
		return fmt.Errorf("invalid coins: %d", coins)
	}

	delta := coins
	if direction == directionDebit {
		delta = -coins
	}

	err := w.dao.Apply(ctx, &expdao.WalletTransactionPO{
		UserID:           userID,
		Direction:        direction,
		Coins:            coins,
		ReferenceOrderNo: referenceOrderNo,
		Memo:             memo,
	}, delta)
	if errors.Is(err, expdao.ErrFlowExisted) {
		log.InfoContextf(ctx, "wallet %s repeated, order no: %s", direction, referenceOrderNo)
		return nil
	}
	return err
}

// Balance 查询用户金币余额，钱包不存在时为 0
func (w *WalletSettler) Balance(ctx context.Context, userID uint64) (int64, error) {
	wallets, err := w.dao.GetWallets(ctx, expdao.WithUserID(userID))
	if err != nil {
		return 0, err
	}
	if len(wallets) == 0 {
		return 0, nil
	}
	return wallets[0].Balance, nil
}
