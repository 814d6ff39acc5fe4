package pkg

import (
	"fmt"

	rd "github.com/redis/go-redis/v9"
	"github.com/xiaoxuxiansheng/redis_lock"
)

func NewRedisClient(network, address, password string) *redis_lock.Client {
	return redis_lock.NewClient(network, address, password)
}

// NewGoRedisClient 幂等记录依赖 lua 脚本，使用 go-redis 客户端
func NewGoRedisClient(address, password string, db int) *rd.Client {
	return rd.NewClient(&rd.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// 构造商品缓存 key
func BuildGoodsCacheKey(goodsID uint64) string {
	return fmt.Sprintf("ordertcc:goods:%d", goodsID)
}
