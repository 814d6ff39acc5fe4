package dao

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T, now time.Time) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	mock.ExpectQuery("SELECT VERSION()").WillReturnRows(sqlmock.NewRows([]string{"VERSION"}).AddRow("1"))

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn: db,
	}), &gorm.Config{
		DisableAutomaticPing: true,
		NowFunc: func() time.Time {
			return now
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return gdb, mock
}

func Test_TXLogDAO(t *testing.T) {
	now := time.Now()
	gdb, mock := newMockDB(t, now)
	ctx := context.Background()
	txLogDAO := NewTXLogDAO(gdb)

	columns := []string{"id", "created_at", "updated_at", "deleted_at", "biz_id", "scene", "participant_type", "phase", "tried", "confirmed", "outcomes"}
	outcomes := `[{"outcome":"TRY_SUCCESS","createdAt":"2024-01-01T00:00:00Z"}]`

	tests := []struct {
		name string
		f    func()
	}{
		{
			name: "GetTXLogs",
			f: func() {
				rows := sqlmock.NewRows(columns).AddRow(1, now, now, nil, "o1", "normal-buy", "order", "tried", true, false, outcomes)
				mock.ExpectQuery("SELECT \\* FROM `tx_log` WHERE biz_id = \\? AND scene = \\? AND participant_type = \\? AND `tx_log`.`deleted_at` IS NULL").
					WithArgs("o1", "normal-buy", "order").WillReturnRows(rows)
				logs, err := txLogDAO.GetTXLogs(ctx, WithTXKey("o1", "normal-buy", "order"))
				assert.Equal(t, nil, err)
				assert.Equal(t, 1, len(logs))
				assert.Equal(t, "tried", logs[0].Phase)
				assert.Equal(t, true, logs[0].Tried)
				assert.JSONEq(t, outcomes, string(logs[0].Outcomes))
			},
		},
		{
			name: "CreateTXLog",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `tx_log`").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
				err := txLogDAO.CreateTXLog(ctx, &TXLogPO{
					BizID:           "o1",
					Scene:           "normal-buy",
					ParticipantType: "order",
					Phase:           "tried",
					Tried:           true,
					Outcomes:        datatypes.JSON(outcomes),
				})
				assert.Equal(t, nil, err)
			},
		},
		{
			name: "CreateTXLogDuplicated",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `tx_log`").WillReturnError(gorm.ErrDuplicatedKey)
				mock.ExpectRollback()
				err := txLogDAO.CreateTXLog(ctx, &TXLogPO{BizID: "o1", Scene: "normal-buy", ParticipantType: "order"})
				assert.Equal(t, true, errors.Is(err, gorm.ErrDuplicatedKey))
			},
		},
		{
			name: "LockAndDo",
			f: func() {
				mock.ExpectBegin()
				rows := sqlmock.NewRows(columns).AddRow(1, now, now, nil, "o1", "normal-buy", "order", "tried", true, false, outcomes)
				mock.ExpectQuery("SELECT \\* FROM `tx_log` WHERE biz_id = \\? AND scene = \\? AND participant_type = \\? AND `tx_log`.`deleted_at` IS NULL ORDER BY `tx_log`.`id` LIMIT .+ FOR UPDATE").
					WillReturnRows(rows)
				mock.ExpectExec("UPDATE `tx_log` SET").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
				err := txLogDAO.LockAndDo(ctx, "o1", "normal-buy", "order", func(ctx context.Context, dao *TXLogDAO, log *TXLogPO) error {
					assert.Equal(t, uint(1), log.ID)
					log.Phase = "confirmed"
					log.Confirmed = true
					return dao.UpdateTXLog(ctx, log)
				})
				assert.Equal(t, nil, err)
			},
		},
		{
			name: "LockAndDoNotFound",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT \\* FROM `tx_log` WHERE .+ FOR UPDATE").WillReturnRows(sqlmock.NewRows(columns))
				mock.ExpectRollback()
				err := txLogDAO.LockAndDo(ctx, "o2", "normal-buy", "order", func(ctx context.Context, dao *TXLogDAO, log *TXLogPO) error {
					t.Error("should not be called")
					return nil
				})
				assert.Equal(t, true, errors.Is(err, gorm.ErrRecordNotFound))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f()
		})
	}
	assert.Equal(t, nil, mock.ExpectationsWereMet())
}

func Test_OrderDAO(t *testing.T) {
	now := time.Now()
	gdb, mock := newMockDB(t, now)
	ctx := context.Background()
	orderDAO := NewOrderDAO(gdb)

	columns := []string{"id", "created_at", "updated_at", "deleted_at", "order_id", "order_no", "scene", "user_id", "goods_id", "goods_type",
		"coin_quantity", "quantity", "total_amount", "discount_amount", "final_amount", "status", "pay_status"}
	row := func(rows *sqlmock.Rows, status, payStatus string) *sqlmock.Rows {
		return rows.AddRow(1, now, now, nil, "o1", "20240101000000ABCDEFGHIJ", "normal-buy", 7, 2, "coin", 1000, 1, "100.00", "10.00", "90.00", status, payStatus)
	}

	tests := []struct {
		name string
		f    func()
	}{
		{
			name: "GetOrders",
			f: func() {
				mock.ExpectQuery("SELECT \\* FROM `orders` WHERE order_id = \\? AND `orders`.`deleted_at` IS NULL").
					WithArgs("o1").WillReturnRows(row(sqlmock.NewRows(columns), "pending", "unpaid"))
				orders, err := orderDAO.GetOrders(ctx, WithOrderID("o1"))
				assert.Equal(t, nil, err)
				assert.Equal(t, 1, len(orders))
				assert.Equal(t, true, orders[0].FinalAmount.Equal(decimal.NewFromInt(90)))
				assert.Equal(t, int64(1000), orders[0].CoinQuantity)
			},
		},
		{
			name: "GetExpiredOrders",
			f: func() {
				mock.ExpectQuery("SELECT \\* FROM `orders` WHERE status = \\? AND created_at < \\? AND `orders`.`deleted_at` IS NULL ORDER BY id LIMIT .+").
					WillReturnRows(row(sqlmock.NewRows(columns), "pending", "unpaid"))
				orders, err := orderDAO.GetOrders(ctx, WithStatus("pending"), WithCreatedBefore(now), WithLimit(10))
				assert.Equal(t, nil, err)
				assert.Equal(t, 1, len(orders))
			},
		},
		{
			name: "CreateOrder",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `orders`").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
				err := orderDAO.CreateOrder(ctx, &OrderPO{
					OrderID:     "o1",
					OrderNo:     "20240101000000ABCDEFGHIJ",
					TotalAmount: decimal.NewFromInt(100),
					Status:      "pending",
					PayStatus:   "unpaid",
				})
				assert.Equal(t, nil, err)
			},
		},
		{
			name: "LockAndDo",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT \\* FROM `orders` WHERE order_id = \\? AND `orders`.`deleted_at` IS NULL ORDER BY `orders`.`id` LIMIT .+ FOR UPDATE").
					WillReturnRows(row(sqlmock.NewRows(columns), "pending", "unpaid"))
				mock.ExpectExec("UPDATE `orders` SET").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
				err := orderDAO.LockAndDo(ctx, "o1", func(ctx context.Context, dao *OrderDAO, order *OrderPO) error {
					order.Status = "confirmed"
					order.PayStatus = "paid"
					return dao.UpdateOrder(ctx, order)
				})
				assert.Equal(t, nil, err)
			},
		},
		{
			name: "LockAndDoErr",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT \\* FROM `orders` WHERE .+ FOR UPDATE").
					WillReturnRows(row(sqlmock.NewRows(columns), "pending", "unpaid"))
				mock.ExpectRollback()
				err := orderDAO.LockAndDo(ctx, "o1", func(ctx context.Context, dao *OrderDAO, order *OrderPO) error {
					return errors.New("do err")
				})
				assert.Equal(t, "do err", err.Error())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f()
		})
	}
	assert.Equal(t, nil, mock.ExpectationsWereMet())
}

func Test_WalletDAO_Apply(t *testing.T) {
	now := time.Now()
	gdb, mock := newMockDB(t, now)
	ctx := context.Background()
	walletDAO := NewWalletDAO(gdb)

	flow := func(direction string, coins int64) *WalletTransactionPO {
		return &WalletTransactionPO{
			UserID:           7,
			Direction:        direction,
			Coins:            coins,
			ReferenceOrderNo: "20240101000000ABCDEFGHIJ",
		}
	}

	tests := []struct {
		name string
		f    func()
	}{
		{
			name: "creditExisted",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `wallet` \\(.+ON DUPLICATE KEY UPDATE").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("INSERT INTO `wallet_transaction`").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("UPDATE `wallet` SET `balance`=balance \\+ \\?,`updated_at`=\\? WHERE user_id = \\?").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
				assert.Equal(t, nil, walletDAO.Apply(ctx, flow("credit", 1000), 1000))
			},
		},
		{
			name: "creditFirstTime",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `wallet` \\(.+ON DUPLICATE KEY UPDATE").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("INSERT INTO `wallet_transaction`").WillReturnResult(sqlmock.NewResult(2, 1))
				mock.ExpectExec("UPDATE `wallet` SET").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
				assert.Equal(t, nil, walletDAO.Apply(ctx, flow("credit", 1000), 1000))
			},
		},
		{
			name: "creditWalletCreateErr",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `wallet` \\(").WillReturnError(errors.New("db down"))
				mock.ExpectRollback()
				err := walletDAO.Apply(ctx, flow("credit", 1000), 1000)
				assert.Equal(t, true, err != nil)
				assert.Equal(t, false, errors.Is(err, ErrFlowExisted))
			},
		},
		{
			name: "debit",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `wallet_transaction`").WillReturnResult(sqlmock.NewResult(3, 1))
				mock.ExpectExec("UPDATE `wallet` SET `balance`=balance \\+ \\?,`updated_at`=\\? WHERE user_id = \\? AND balance >= \\?").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
				assert.Equal(t, nil, walletDAO.Apply(ctx, flow("debit", 1000), -1000))
			},
		},
		{
			name: "debitInsufficient",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `wallet_transaction`").WillReturnResult(sqlmock.NewResult(4, 1))
				mock.ExpectExec("UPDATE `wallet` SET").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectRollback()
				err := walletDAO.Apply(ctx, flow("debit", 1000), -1000)
				assert.Equal(t, true, errors.Is(err, ErrInsufficientBalance))
			},
		},
		{
			name: "duplicated",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `wallet` \\(").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("INSERT INTO `wallet_transaction`").WillReturnError(gorm.ErrDuplicatedKey)
				mock.ExpectRollback()
				err := walletDAO.Apply(ctx, flow("credit", 1000), 1000)
				assert.Equal(t, true, errors.Is(err, ErrFlowExisted))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f()
		})
	}
	assert.Equal(t, nil, mock.ExpectationsWereMet())
}

func Test_GoodsDAO(t *testing.T) {
	now := time.Now()
	gdb, mock := newMockDB(t, now)
	ctx := context.Background()
	goodsDAO := NewGoodsDAO(gdb)

	columns := []string{"id", "created_at", "updated_at", "deleted_at", "name", "type", "price", "coin_amount", "stock"}

	tests := []struct {
		name string
		f    func()
	}{
		{
			name: "GetGoods",
			f: func() {
				rows := sqlmock.NewRows(columns).AddRow(2, now, now, nil, "coin pack", "coin", "100.00", 1000, 5)
				mock.ExpectQuery("SELECT \\* FROM `goods` WHERE id = \\? AND `goods`.`deleted_at` IS NULL").WithArgs(2).WillReturnRows(rows)
				goods, err := goodsDAO.GetGoods(ctx, WithID(2))
				assert.Equal(t, nil, err)
				assert.Equal(t, 1, len(goods))
				assert.Equal(t, int64(1000), goods[0].CoinAmount)
				assert.Equal(t, "100", goods[0].Price.String())
			},
		},
		{
			name: "CreateGoods",
			f: func() {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO `goods`").WillReturnResult(sqlmock.NewResult(3, 1))
				mock.ExpectCommit()
				id, err := goodsDAO.CreateGoods(ctx, &GoodsPO{Name: "tee", Type: "normal", Price: decimal.NewFromInt(100)})
				assert.Equal(t, nil, err)
				assert.Equal(t, uint(3), id)
			},
		},
		{
			name: "LockAndDo",
			f: func() {
				mock.ExpectBegin()
				rows := sqlmock.NewRows(columns).AddRow(2, now, now, nil, "coin pack", "coin", "100.00", 1000, 5)
				mock.ExpectQuery("SELECT \\* FROM `goods` WHERE `goods`.`id` = \\? AND `goods`.`deleted_at` IS NULL ORDER BY `goods`.`id` LIMIT .+ FOR UPDATE").
					WillReturnRows(rows)
				mock.ExpectExec("UPDATE `goods` SET `stock`=\\?,`updated_at`=\\? WHERE id = \\?").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
				err := goodsDAO.LockAndDo(ctx, 2, func(ctx context.Context, dao *GoodsDAO, goods *GoodsPO) error {
					return dao.UpdateStock(ctx, goods.ID, 0)
				})
				assert.Equal(t, nil, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f()
		})
	}
	assert.Equal(t, nil, mock.ExpectationsWereMet())
}
