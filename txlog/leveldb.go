package txlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore 将事务日志存放在本地 leveldb 中，适用于单节点部署.
// 读-判断-写 在进程内通过互斥锁保证原子性
type LevelDBStore struct {
	mux sync.Mutex
	db  *leveldb.DB
}

func NewLevelDBStore(db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{
		db: db,
	}
}

// OpenLevelDBStore 打开 path 下的 leveldb 文件
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return NewLevelDBStore(db), nil
}

func (l *LevelDBStore) Close() error {
	return l.db.Close()
}

func buildEntryKey(key Key) []byte {
	return []byte("txlog:" + key.Encode())
}

func (l *LevelDBStore) load(key Key) (*Entry, error) {
	body, err := l.db.Get(buildEntryKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err = json.Unmarshal(body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (l *LevelDBStore) put(entry *Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return l.db.Put(buildEntryKey(entry.Key), body, nil)
}

func (l *LevelDBStore) Get(ctx context.Context, key Key) (*Entry, error) {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.load(key)
}

func (l *LevelDBStore) Create(ctx context.Context, entry *Entry) error {
	l.mux.Lock()
	defer l.mux.Unlock()
	_, err := l.load(entry.Key)
	if err == nil {
		return ErrEntryExisted
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return err
	}
	return l.put(entry)
}

func (l *LevelDBStore) Update(ctx context.Context, entry *Entry) error {
	l.mux.Lock()
	defer l.mux.Unlock()
	if _, err := l.load(entry.Key); err != nil {
		return err
	}
	return l.put(entry)
}
