package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venikman/ui-morn/pkg/domain"
)

// RunMirrorStoreContract verifies that a MirrorStore keeps per-owner order and isolation.
// Asynchronous stores are given a short window to drain.
func RunMirrorStoreContract(t *testing.T, store MirrorStore) {
	ctx := context.Background()
	owner := "contract-owner-" + time.Now().Format("20060102150405.000000000")

	eventually := func(t *testing.T, ownerID string, want int) []domain.Event {
		var got []domain.Event
		require.Eventually(t, func() bool {
			evs, err := store.Events(ctx, ownerID)
			if err != nil {
				return false
			}
			got = evs
			return len(evs) >= want
		}, 2*time.Second, 10*time.Millisecond, "store did not receive %d events", want)
		return got
	}

	t.Run("Publish preserves order", func(t *testing.T) {
		for i := 1; i <= 5; i++ {
			err := store.Publish(ctx, domain.Event{
				OwnerID:   owner,
				Sequence:  int64(i),
				Kind:      domain.KindWorking,
				Parts:     []domain.Part{domain.TextPart(fmt.Sprintf("chunk %d", i))},
				Timestamp: time.Now().UTC(),
			})
			require.NoError(t, err)
		}

		got := eventually(t, owner, 5)
		require.Len(t, got, 5)
		for i, ev := range got {
			assert.Equal(t, int64(i+1), ev.Sequence)
			assert.Equal(t, owner, ev.OwnerID)
			assert.Equal(t, domain.KindWorking, ev.Kind)
			require.Len(t, ev.Parts, 1)
			assert.Equal(t, fmt.Sprintf("chunk %d", i+1), ev.Parts[0].Text)
		}
	})

	t.Run("Owners are isolated", func(t *testing.T) {
		other := owner + "-other"
		require.NoError(t, store.Publish(ctx, domain.Event{OwnerID: other, Sequence: 1, Kind: domain.KindCompleted}))

		got := eventually(t, other, 1)
		assert.Len(t, got, 1)
		assert.Equal(t, domain.KindCompleted, got[0].Kind)
	})

	t.Run("Unknown owner is empty", func(t *testing.T) {
		got, err := store.Events(ctx, owner+"-missing")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
