package passpkg

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheck(t *testing.T) {
	t.Parallel()

	const password = "secret123"

	hashed, err := Hash(password)
	require.NoError(t, err)
	require.NotEqual(t, password, hashed)

	testCases := []struct {
		name     string
		password string
		wantErr  error
	}{
		{name: "Match", password: password},
		{name: "Mismatch", password: "secret124", wantErr: bcrypt.ErrMismatchedHashAndPassword},
		{name: "Empty", password: "", wantErr: bcrypt.ErrMismatchedHashAndPassword},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.ErrorIs(t, Check(tc.password, hashed), tc.wantErr)
		})
	}

	again, err := Hash(password)
	require.NoError(t, err)
	require.NotEqual(t, hashed, again, "salt must differ between hashes")
}

func TestHashTooLong(t *testing.T) {
	t.Parallel()

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}

	_, err := Hash(string(long))
	require.Error(t, err)
}
