package memory_test

import (
	"testing"

	"github.com/capitalize-ai/healthassist/internal/store"
	"github.com/capitalize-ai/healthassist/internal/store/memory"
	"github.com/capitalize-ai/healthassist/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now store.Clock) store.Store {
		return memory.New(now)
	})
}
