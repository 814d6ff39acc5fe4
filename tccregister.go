package ordertcc

import (
	"fmt"
	"sync"
)

// 交易场景注册中心，只有注册过的 scene 才能发起事务
type sceneRegistry struct {
	mux    sync.RWMutex
	scenes map[string]struct{}
}

func newSceneRegistry(scenes ...string) *sceneRegistry {
	r := sceneRegistry{
		scenes: make(map[string]struct{}, len(scenes)),
	}
	for _, scene := range scenes {
		_ = r.register(scene)
	}
	return &r
}

func (r *sceneRegistry) register(scene string) error {
	if scene == "" {
		return fmt.Errorf("%w: empty scene", ErrInvalidScene)
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	r.scenes[scene] = struct{}{}
	return nil
}

func (r *sceneRegistry) check(scene string) error {
	r.mux.RLock()
	defer r.mux.RUnlock()
	if _, ok := r.scenes[scene]; !ok {
		return fmt.Errorf("%w: scene: %s not registered", ErrInvalidScene, scene)
	}
	return nil
}

func (r *sceneRegistry) list() []string {
	r.mux.RLock()
	defer r.mux.RUnlock()
	scenes := make([]string, 0, len(r.scenes))
	for scene := range r.scenes {
		scenes = append(scenes, scene)
	}
	return scenes
}
