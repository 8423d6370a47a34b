package memory_test

import (
	"testing"

	"github.com/and07/mindsync/pkg/adapters/memory"
	"github.com/and07/mindsync/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunBoardStoreContract(t, store)
}
