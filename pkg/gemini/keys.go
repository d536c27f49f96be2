package gemini

import (
	"strings"
	"sync"
)

// ParseKeys splits a comma separated key list, trimming whitespace and
// dropping empty entries.
func ParseKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// KeyManager holds the ordered API keys and the index of the active one.
// The cursor is a load-balancing hint: concurrent callers may interleave
// their reads and advances, but it never leaves the bounds of the set.
type KeyManager struct {
	keys            []string
	currentKeyIndex int
	mu              sync.Mutex
}

func NewKeyManager(keys []string) *KeyManager {
	return &KeyManager{keys: keys}
}

// Current returns the active key, or "" when no keys are configured.
func (m *KeyManager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) == 0 {
		return ""
	}
	return m.keys[m.currentKeyIndex]
}

// Advance moves to the next key, wrapping around. With fewer than two keys
// it does nothing.
func (m *KeyManager) Advance() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) < 2 {
		return
	}
	m.currentKeyIndex = (m.currentKeyIndex + 1) % len(m.keys)
}

func (m *KeyManager) HasMultiple() bool {
	return len(m.keys) > 1
}

func (m *KeyManager) Count() int {
	return len(m.keys)
}

// Suffix returns the last four characters of key, for log lines.
func Suffix(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[len(key)-4:]
}
