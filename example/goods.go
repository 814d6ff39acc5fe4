package example

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/demdxx/gocast"
	"github.com/xiaoxuxiansheng/redis_lock"

	"github.com/xiaoxuxiansheng/ordertcc"
	expdao "github.com/xiaoxuxiansheng/ordertcc/example/dao"
	"github.com/xiaoxuxiansheng/ordertcc/example/pkg"
	"github.com/xiaoxuxiansheng/ordertcc/log"
)

type GoodsReader struct {
	dao *expdao.GoodsDAO
}

func NewGoodsReader(dao *expdao.GoodsDAO) *GoodsReader {
	return &GoodsReader{
		dao: dao,
	}
}

func (g *GoodsReader) GetGoods(ctx context.Context, goodsID uint64) (*ordertcc.Goods, error) {
	goods, err := g.dao.GetGoods(ctx, expdao.WithID(gocast.ToUint(goodsID)))
	if err != nil {
		return nil, err
	}
	if len(goods) == 0 {
		return nil, fmt.Errorf("%w: %d", ordertcc.ErrGoodsNotFound, goodsID)
	}
	return toGoods(goods[0]), nil
}

// CachedGoodsReader 在 redis 中缓存商品快照，缓存读写失败时降级读库
type CachedGoodsReader struct {
	client *redis_lock.Client
	next   ordertcc.GoodsReader
}

func NewCachedGoodsReader(client *redis_lock.Client, next ordertcc.GoodsReader) *CachedGoodsReader {
	return &CachedGoodsReader{
		client: client,
		next:   next,
	}
}

func (c *CachedGoodsReader) GetGoods(ctx context.Context, goodsID uint64) (*ordertcc.Goods, error) {
	body, err := c.client.Get(ctx, pkg.BuildGoodsCacheKey(goodsID))
	if err != nil && !errors.Is(err, redis_lock.ErrNil) {
		log.WarnContextf(ctx, "get goods cache failed, goods id: %d, err: %v", goodsID, err)
	}

	if body != "" {
		var goods ordertcc.Goods
		if err = json.Unmarshal([]byte(body), &goods); err == nil {
			return &goods, nil
		}
	}

	goods, err := c.next.GetGoods(ctx, goodsID)
	if err != nil {
		return nil, err
	}

	newBody, _ := json.Marshal(goods)
	if _, err = c.client.Set(ctx, pkg.BuildGoodsCacheKey(goodsID), string(newBody)); err != nil {
		log.WarnContextf(ctx, "set goods cache failed, goods id: %d, err: %v", goodsID, err)
	}
	return goods, nil
}

// Invalidate 商品变更后删除缓存
func (c *CachedGoodsReader) Invalidate(ctx context.Context, goodsID uint64) error {
	return c.client.Del(ctx, pkg.BuildGoodsCacheKey(goodsID))
}

func toGoods(po *expdao.GoodsPO) *ordertcc.Goods {
	return &ordertcc.Goods{
		ID:         uint64(po.ID),
		Name:       po.Name,
		Type:       ordertcc.GoodsType(po.Type),
		Price:      po.Price,
		CoinAmount: po.CoinAmount,
		Stock:      po.Stock,
	}
}
