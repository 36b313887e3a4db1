package billerrepo

import (
	"context"
	"testing"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRepoMem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRepoMem()

	power, err := repo.Create(ctx, domain.CreateBillerParams{Owner: "alice", Name: "City Power", AccountNumber: "****6789"})
	require.NoError(t, err)
	require.Equal(t, int64(1), power.ID)

	_, err = repo.Create(ctx, domain.CreateBillerParams{Owner: "bob", Name: "Water", AccountNumber: "****0001"})
	require.NoError(t, err)

	water, err := repo.Create(ctx, domain.CreateBillerParams{Owner: "alice", Name: "Water", AccountNumber: "****0002"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, power.ID)
	require.NoError(t, err)

	if diff := cmp.Diff(power, got); diff != "" {
		t.Errorf("repo.Get(%v) mismatch (-want +got):\n%s", power.ID, diff)
	}

	_, err = repo.Get(ctx, 99)
	require.ErrorIs(t, err, domain.ErrBillerNotFound)

	list, err := repo.List(ctx, "alice")
	require.NoError(t, err)

	if diff := cmp.Diff([]domain.Biller{power, water}, list); diff != "" {
		t.Errorf("repo.List(alice) mismatch (-want +got):\n%s", diff)
	}

	empty, err := repo.List(ctx, "carol")
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}
