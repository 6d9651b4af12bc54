package mixvol

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/thoas/go-funk"
)

// controlMap maps physical control ids to their targets
type controlMap struct {
	m    map[int][]string
	lock sync.RWMutex
}

func newControlMap() *controlMap {
	return &controlMap{
		m: make(map[int][]string),
	}
}

// controlMapFromConfig drops non-numeric ids, empty targets and duplicates
func controlMapFromConfig(userMapping map[string][]string) *controlMap {
	resultMap := newControlMap()

	for controlIdxString, targets := range userMapping {
		controlIdx, err := strconv.Atoi(controlIdxString)
		if err != nil {
			continue
		}

		nonEmpty := funk.FilterString(targets, func(s string) bool {
			return s != ""
		})

		resultMap.set(controlIdx, funk.UniqString(nonEmpty))
	}

	return resultMap
}

func (m *controlMap) iterate(f func(int, []string)) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for key, value := range m.m {
		f(key, value)
	}
}

func (m *controlMap) get(key int) ([]string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	value, ok := m.m[key]
	return value, ok
}

func (m *controlMap) set(key int, value []string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.m[key] = value
}

func (m *controlMap) String() string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	controlCount := len(m.m)
	targetCount := 0

	for _, targets := range m.m {
		targetCount += len(targets)
	}

	return fmt.Sprintf("<%d controls mapped to %d targets>", controlCount, targetCount)
}
