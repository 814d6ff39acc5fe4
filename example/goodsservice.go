package example

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/demdxx/gocast"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/xiaoxuxiansheng/ordertcc"
	expdao "github.com/xiaoxuxiansheng/ordertcc/example/dao"
	"github.com/xiaoxuxiansheng/ordertcc/idempotent"
	"github.com/xiaoxuxiansheng/ordertcc/log"
)

var (
	ErrInvalidGoods      = errors.New("invalid goods")
	ErrInsufficientStock = errors.New("insufficient stock")
)

const (
	operationCreateGoods = "create-goods"
	operationAdjustStock = "adjust-stock"
)

type CreateGoodsReq struct {
	Name       string             `json:"name"`
	Type       ordertcc.GoodsType `json:"type"`
	Price      decimal.Decimal    `json:"price"`
	CoinAmount int64              `json:"coinAmount"`
	Stock      int64              `json:"stock"`
}

func (r *CreateGoodsReq) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidGoods)
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidGoods)
	}
	if r.Stock < 0 {
		return fmt.Errorf("%w: negative stock", ErrInvalidGoods)
	}
	switch r.Type {
	case ordertcc.GoodsNormal:
	case ordertcc.GoodsCoin:
		if r.CoinAmount <= 0 {
			return fmt.Errorf("%w: coin goods without coin amount", ErrInvalidGoods)
		}
	default:
		return fmt.Errorf("%w: goods type: %s", ErrInvalidGoods, r.Type)
	}
	return nil
}

// GoodsService 商品的写操作，调用方携带 token 重试时返回首次执行的结果
type GoodsService struct {
	dao      *expdao.GoodsDAO
	executor *idempotent.Executor
	cache    *CachedGoodsReader
}

func NewGoodsService(dao *expdao.GoodsDAO, executor *idempotent.Executor, cache *CachedGoodsReader) *GoodsService {
	return &GoodsService{
		dao:      dao,
		executor: executor,
		cache:    cache,
	}
}

func (g *GoodsService) CreateGoods(ctx context.Context, token string, req *CreateGoodsReq) (*ordertcc.Goods, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	key := idempotent.BuildKey(operationCreateGoods, token, req.Name)
	body, err := g.executor.Execute(ctx, key, func(ctx context.Context) ([]byte, error) {
		po := expdao.GoodsPO{
			Name:       req.Name,
			Type:       req.Type.String(),
			Price:      req.Price,
			CoinAmount: req.CoinAmount,
			Stock:      req.Stock,
		}
		if _, err := g.dao.CreateGoods(ctx, &po); err != nil {
			return nil, err
		}
		return json.Marshal(toGoods(&po))
	})
	if err != nil {
		return nil, err
	}

	var goods ordertcc.Goods
	return &goods, json.Unmarshal(body, &goods)
}

// AdjustStock 调整库存，delta 为负时要求库存充足
func (g *GoodsService) AdjustStock(ctx context.Context, token string, goodsID uint64, delta int64) (*ordertcc.Goods, error) {
	key := idempotent.BuildKey(operationAdjustStock, token, gocast.ToString(goodsID))
	body, err := g.executor.Execute(ctx, key, func(ctx context.Context) ([]byte, error) {
		var goods *ordertcc.Goods
		err := g.dao.LockAndDo(ctx, gocast.ToUint(goodsID), func(ctx context.Context, dao *expdao.GoodsDAO, po *expdao.GoodsPO) error {
			if po.Stock+delta < 0 {
				return fmt.Errorf("%w: goods id: %d, stock: %d, delta: %d", ErrInsufficientStock, goodsID, po.Stock, delta)
			}
			po.Stock += delta
			if err := dao.UpdateStock(ctx, po.ID, po.Stock); err != nil {
				return err
			}
			goods = toGoods(po)
			return nil
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ordertcc.ErrGoodsNotFound, goodsID)
		}
		if err != nil {
			return nil, err
		}
		return json.Marshal(goods)
	})
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Invalidate(ctx, goodsID); err != nil {
			log.WarnContextf(ctx, "invalidate goods cache failed, goods id: %d, err: %v", goodsID, err)
		}
	}

	var goods ordertcc.Goods
	return &goods, json.Unmarshal(body, &goods)
}
