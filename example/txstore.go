package example

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	expdao "github.com/xiaoxuxiansheng/ordertcc/example/dao"
	"github.com/xiaoxuxiansheng/ordertcc/txlog"
)

// TXLogStore 基于 mysql 的事务日志存储，(biz_id, scene, participant_type) 唯一索引保证一条日志只会被创建一次
type TXLogStore struct {
	dao *expdao.TXLogDAO
}

func NewTXLogStore(dao *expdao.TXLogDAO) *TXLogStore {
	return &TXLogStore{
		dao: dao,
	}
}

func (t *TXLogStore) Get(ctx context.Context, key txlog.Key) (*txlog.Entry, error) {
	logs, err := t.dao.GetTXLogs(ctx, expdao.WithTXKey(key.BizID, key.Scene, key.ParticipantType))
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, txlog.ErrEntryNotFound
	}
	return toEntry(logs[0])
}

func (t *TXLogStore) Create(ctx context.Context, entry *txlog.Entry) error {
	po, err := toTXLogPO(entry)
	if err != nil {
		return err
	}
	err = t.dao.CreateTXLog(ctx, po)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return txlog.ErrEntryExisted
	}
	return err
}

func (t *TXLogStore) Update(ctx context.Context, entry *txlog.Entry) error {
	do := func(ctx context.Context, dao *expdao.TXLogDAO, log *expdao.TXLogPO) error {
		po, err := toTXLogPO(entry)
		if err != nil {
			return err
		}
		// tried/confirmed 只会由 false 置为 true，零值不参与更新不影响结果
		log.Phase = po.Phase
		log.Tried = po.Tried
		log.Confirmed = po.Confirmed
		log.Outcomes = po.Outcomes
		return dao.UpdateTXLog(ctx, log)
	}

	err := t.dao.LockAndDo(ctx, entry.BizID, entry.Scene, entry.ParticipantType, do)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return txlog.ErrEntryNotFound
	}
	return err
}

func toTXLogPO(entry *txlog.Entry) (*expdao.TXLogPO, error) {
	outcomes, err := json.Marshal(entry.Outcomes)
	if err != nil {
		return nil, err
	}
	return &expdao.TXLogPO{
		BizID:           entry.BizID,
		Scene:           entry.Scene,
		ParticipantType: entry.ParticipantType,
		Phase:           entry.Phase.String(),
		Tried:           entry.Tried,
		Confirmed:       entry.Confirmed,
		Outcomes:        outcomes,
	}, nil
}

func toEntry(po *expdao.TXLogPO) (*txlog.Entry, error) {
	var outcomes []*txlog.OutcomeRecord
	if len(po.Outcomes) > 0 {
		if err := json.Unmarshal(po.Outcomes, &outcomes); err != nil {
			return nil, err
		}
	}
	return &txlog.Entry{
		Key: txlog.Key{
			BizID:           po.BizID,
			Scene:           po.Scene,
			ParticipantType: po.ParticipantType,
		},
		Phase:     txlog.Phase(po.Phase),
		Tried:     po.Tried,
		Confirmed: po.Confirmed,
		Outcomes:  outcomes,
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
	}, nil
}
