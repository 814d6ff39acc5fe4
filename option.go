package ordertcc

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaoxuxiansheng/ordertcc/metrics"
)

const (
	// 默认的交易场景
	SceneNormalBuy = "normal-buy"
	// 事务日志中订单参与方的类型
	ParticipantOrder = "order"
)

type Options struct {
	// 单次 try/confirm/cancel 持有订单锁的时长上限
	LockExpire time.Duration
	// 请求未指定 scene 时使用的场景
	DefaultScene string
	// 事务日志中的参与方类型
	Participant string
	// 允许的交易场景
	Scenes []string
	// 订单号生成器
	OrderNoGenerator func() string
	Metrics          *metrics.Metrics
}

type Option func(*Options)

func WithLockExpire(expire time.Duration) Option {
	if expire <= 0 {
		expire = 10 * time.Second
	}

	return func(o *Options) {
		o.LockExpire = expire
	}
}

func WithDefaultScene(scene string) Option {
	return func(o *Options) {
		o.DefaultScene = scene
	}
}

func WithParticipant(participant string) Option {
	return func(o *Options) {
		o.Participant = participant
	}
}

// WithScenes 追加允许的交易场景
func WithScenes(scenes ...string) Option {
	return func(o *Options) {
		o.Scenes = append(o.Scenes, scenes...)
	}
}

func WithOrderNoGenerator(generator func() string) Option {
	return func(o *Options) {
		o.OrderNoGenerator = generator
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// 订单号：时间前缀 + 随机串
func defaultOrderNo() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%s", time.Now().Format("20060102150405"), strings.ToUpper(random[:10]))
}

func repair(o *Options) {
	if o.LockExpire <= 0 {
		o.LockExpire = 10 * time.Second
	}

	if o.DefaultScene == "" {
		o.DefaultScene = SceneNormalBuy
	}

	if o.Participant == "" {
		o.Participant = ParticipantOrder
	}

	if o.OrderNoGenerator == nil {
		o.OrderNoGenerator = defaultOrderNo
	}
}
