package txlog

import (
	"fmt"
	"time"
)

// 事务日志所处阶段
type Phase string

func (p Phase) String() string {
	return string(p)
}

const (
	PhaseTried     Phase = "tried"
	PhaseConfirmed Phase = "confirmed"
	PhaseCanceled  Phase = "cancelled"
)

// 单次阶段调用的结果分类
type OutcomeType string

func (o OutcomeType) String() string {
	return string(o)
}

const (
	// try 首次成功
	TryOutcomeSuccess OutcomeType = "TRY_SUCCESS"
	// 重复的 try 请求
	TryOutcomeAlreadyTried OutcomeType = "ALREADY_TRIED"
	// 先空回滚，后收到 try 请求
	TryOutcomeSuspended OutcomeType = "TRY_SUSPENDED"

	ConfirmOutcomeSuccess OutcomeType = "CONFIRM_SUCCESS"
	ConfirmOutcomeReplay  OutcomeType = "CONFIRM_REPLAY"

	CancelOutcomeAfterTry     OutcomeType = "CANCEL_AFTER_TRY_SUCCESS"
	CancelOutcomeAfterConfirm OutcomeType = "CANCEL_AFTER_CONFIRM_SUCCESS"
	// 空回滚
	CancelOutcomeWithoutTry OutcomeType = "CANCEL_WITHOUT_TRY"
	CancelOutcomeReplay     OutcomeType = "CANCEL_REPLAY"
)

// FirstTime 是否需要执行真正的业务逻辑
func (o OutcomeType) FirstTime() bool {
	switch o {
	case TryOutcomeSuccess, ConfirmOutcomeSuccess, CancelOutcomeAfterTry, CancelOutcomeAfterConfirm:
		return true
	default:
		return false
	}
}

// Replay 是否为幂等重放
func (o OutcomeType) Replay() bool {
	switch o {
	case TryOutcomeAlreadyTried, ConfirmOutcomeReplay, CancelOutcomeReplay:
		return true
	default:
		return false
	}
}

// 事务日志的唯一键
type Key struct {
	BizID           string `json:"bizID"`
	Scene           string `json:"scene"`
	ParticipantType string `json:"participantType"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Scene, k.ParticipantType, k.BizID)
}

// Encode 存储层使用的 key. scene 与 participant 带长度前缀，各字段中出现 ':' 时也不会产生冲突
func (k Key) Encode() string {
	return fmt.Sprintf("%d:%s:%d:%s:%s", len(k.Scene), k.Scene, len(k.ParticipantType), k.ParticipantType, k.BizID)
}

// 调用记录的条数上限，超出时保留首条记录并丢弃最早的其余记录
const maxOutcomeRecords = 32

// 每一次阶段调用的结果记录. 连续相同的重放合并为一条，Times 为合并的次数
type OutcomeRecord struct {
	Outcome   OutcomeType `json:"outcome"`
	Times     int         `json:"times,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// 一笔分布式事务在当前参与方的日志
type Entry struct {
	Key
	Phase     Phase            `json:"phase"`
	Tried     bool             `json:"tried"`
	Confirmed bool             `json:"confirmed"`
	Outcomes  []*OutcomeRecord `json:"outcomes"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (e *Entry) record(outcome OutcomeType, now time.Time) {
	e.UpdatedAt = now
	if n := len(e.Outcomes); n > 0 && outcome.Replay() && e.Outcomes[n-1].Outcome == outcome {
		last := e.Outcomes[n-1]
		last.Times++
		last.UpdatedAt = now
		return
	}

	e.Outcomes = append(e.Outcomes, &OutcomeRecord{
		Outcome:   outcome,
		Times:     1,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if n := len(e.Outcomes); n > maxOutcomeRecords {
		e.Outcomes = append(e.Outcomes[:1], e.Outcomes[n-maxOutcomeRecords+1:]...)
	}
}

// LastOutcome 最近一次调用的结果
func (e *Entry) LastOutcome() OutcomeType {
	if len(e.Outcomes) == 0 {
		return ""
	}
	return e.Outcomes[len(e.Outcomes)-1].Outcome
}

func (e *Entry) clone() *Entry {
	cp := *e
	cp.Outcomes = make([]*OutcomeRecord, 0, len(e.Outcomes))
	for _, outcome := range e.Outcomes {
		o := *outcome
		cp.Outcomes = append(cp.Outcomes, &o)
	}
	return &cp
}
