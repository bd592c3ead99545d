package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendChainsHashesAndVerifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := Open(path, nil)
	require.NoError(t, err)

	_, err = log.Append("block_load", "loaded mod.naab", nil)
	require.NoError(t, err)
	_, err = log.Append("block_execute", "ran polyglot block", map[string]string{"lang": "python"})
	require.NoError(t, err)
	require.NoError(t, log.Close())

	discrepancies, err := Verify(path, nil)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestAppendSignsWithHMACWhenKeyConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	key := []byte("super-secret-key")
	log, err := Open(path, key)
	require.NoError(t, err)
	_, err = log.Append("auth_action", "granted", nil)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	discrepancies, err := Verify(path, key)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)

	discrepancies, err = Verify(path, []byte("wrong-key"))
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	assert.Contains(t, discrepancies[0].Reason, "HMAC")
}

func TestVerifyFlagsTamperedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := Open(path, nil)
	require.NoError(t, err)
	_, err = log.Append("policy_violation", "path escaped allow-list", nil)
	require.NoError(t, err)
	_, err = log.Append("ffi_reject", "bad utf8", nil)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(raw), "path escaped allow-list", "path escaped allow-list!", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	discrepancies, err := Verify(path, nil)
	require.NoError(t, err)
	require.NotEmpty(t, discrepancies)
	found := false
	for _, d := range discrepancies {
		if strings.Contains(d.Reason, "hash does not match") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestVerifyPropagatesBrokenLinkageDownstream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := Open(path, nil)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err = log.Append("block_execute", fmt.Sprintf("event number %d", i), nil)
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(raw), "event number 3", "event number X", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	discrepancies, err := Verify(path, nil)
	require.NoError(t, err)

	bySeq := map[uint64][]string{}
	for _, d := range discrepancies {
		bySeq[d.Sequence] = append(bySeq[d.Sequence], d.Reason)
	}
	require.Contains(t, bySeq, uint64(3), "the tampered entry itself must be flagged")
	assert.Contains(t, strings.Join(bySeq[3], " "), "hash does not match")
	require.Contains(t, bySeq, uint64(4), "entries after the tampered one have broken linkage")
	assert.Contains(t, strings.Join(bySeq[4], " "), "prev_hash mismatch")
	require.Contains(t, bySeq, uint64(5))
	assert.NotContains(t, bySeq, uint64(2), "entries before the tampered one stay clean")
}

func TestOpenRecoversSequenceAndPrevHashAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := Open(path, nil)
	require.NoError(t, err)
	first, err := log.Append("block_load", "first", nil)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	second, err := reopened.Append("block_load", "second", nil)
	require.NoError(t, err)
	require.NoError(t, reopened.Close())

	assert.EqualValues(t, first.Sequence+1, second.Sequence)
	assert.Equal(t, first.Hash, second.PrevHash)
}

func TestFirstEntryChainsToGenesisHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := Open(path, nil)
	require.NoError(t, err)
	e, err := log.Append("block_load", "first", nil)
	require.NoError(t, err)
	require.NoError(t, log.Close())
	assert.Equal(t, genesisHash, e.PrevHash)
	assert.Len(t, genesisHash, 64)
}
