package db

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s, err := OpenFileStore(common.DomainTokenBurns, filepath.Join(t.TempDir(), "processed_token_burns.json"))
	require.NoError(t, err)

	ids, err := s.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	found, err := s.Contains("anything")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStoreRecordSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName(common.DomainNFTDeposits))

	s, err := OpenFileStore(common.DomainNFTDeposits, path)
	require.NoError(t, err)
	require.NoError(t, s.Record("sig1"))
	require.NoError(t, s.Record("sig2"))
	require.NoError(t, s.Record("sig1"))

	reopened, err := OpenFileStore(common.DomainNFTDeposits, path)
	require.NoError(t, err)
	ids, err := reopened.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"sig1", "sig2"}, ids)

	found, err := reopened.Contains("sig2")
	require.NoError(t, err)
	assert.True(t, found)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `["sig1","sig2"]`, string(data))

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_target_burns.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := OpenFileStore(common.DomainTargetBurns, path)
	var dbErr *DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, OpLoad, dbErr.Op)
}

func TestFileStoreWriteFailureKeepsMemoryConsistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, os.Mkdir(dir, 0700))
	s, err := OpenFileStore(common.DomainTokenBurns, filepath.Join(dir, "processed_token_burns.json"))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	err = s.Record("sig1")
	var dbErr *DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, OpUpdate, dbErr.Op)

	found, err := s.Contains("sig1")
	require.NoError(t, err)
	assert.False(t, found, "a failed write must not be reported as recorded")
}

func TestFileStoreRejectsEmptyID(t *testing.T) {
	s, err := OpenFileStore(common.DomainTokenBurns, filepath.Join(t.TempDir(), "x.json"))
	require.NoError(t, err)
	assert.ErrorIs(t, s.Record(""), ErrEmptyID)
}

func TestFileStoreConcurrentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_token_burns.json")
	s, err := OpenFileStore(common.DomainTokenBurns, path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Record(string(rune('a'+i))))
		}(i)
	}
	wg.Wait()

	reopened, err := OpenFileStore(common.DomainTokenBurns, path)
	require.NoError(t, err)
	ids, err := reopened.IDs()
	require.NoError(t, err)
	assert.Len(t, ids, 20)
}

func TestBadgerStore(t *testing.T) {
	dbPath := t.TempDir()
	database, err := Open(dbPath)
	require.NoError(t, err)

	burns := database.ProcessedSet(common.DomainTokenBurns)
	nfts := database.ProcessedSet(common.DomainNFTDeposits)

	require.NoError(t, burns.Record("sig1"))
	require.NoError(t, nfts.Record("sig2"))

	found, err := burns.Contains("sig1")
	require.NoError(t, err)
	assert.True(t, found)

	// Domains do not leak into each other.
	found, err = burns.Contains("sig2")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, []byte("PROCESSED:V1:token_burns:sig1"), burns.key("sig1"))
	require.NoError(t, database.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()
	ids, err := reopened.ProcessedSet(common.DomainNFTDeposits).IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"sig2"}, ids)
}

func TestOpenStores(t *testing.T) {
	for _, backend := range []Backend{BackendFile, BackendBadger} {
		t.Run(string(backend), func(t *testing.T) {
			dataDir := t.TempDir()
			stores, err := OpenStores(zap.NewNop(), backend, dataDir)
			require.NoError(t, err)

			for _, domain := range common.AllDomains {
				set, ok := stores.Get(domain)
				require.True(t, ok)
				assert.Equal(t, domain, set.Domain())
			}

			set, _ := stores.Get(common.DomainTargetBurns)
			require.NoError(t, set.Record("mint:0xabc"))
			require.NoError(t, stores.Close())

			stores, err = OpenStores(zap.NewNop(), backend, dataDir)
			require.NoError(t, err)
			defer stores.Close()
			set, _ = stores.Get(common.DomainTargetBurns)
			found, err := set.Contains("mint:0xabc")
			require.NoError(t, err)
			assert.True(t, found)
		})
	}

	_, err := OpenStores(zap.NewNop(), Backend("sqlite"), t.TempDir())
	assert.Error(t, err)
}

func TestOpenExistingStoresNeverCreates(t *testing.T) {
	for _, backend := range []Backend{BackendFile, BackendBadger} {
		t.Run(string(backend), func(t *testing.T) {
			missing := filepath.Join(t.TempDir(), "typo")
			_, err := OpenExistingStores(zap.NewNop(), backend, missing)
			require.Error(t, err)
			_, err = os.Stat(missing)
			assert.True(t, os.IsNotExist(err))

			dataDir := t.TempDir()
			stores, err := OpenStores(zap.NewNop(), backend, dataDir)
			require.NoError(t, err)
			set, _ := stores.Get(common.DomainTokenBurns)
			require.NoError(t, set.Record("sig1"))
			require.NoError(t, stores.Close())

			stores, err = OpenExistingStores(zap.NewNop(), backend, dataDir)
			require.NoError(t, err)
			defer stores.Close()
			set, _ = stores.Get(common.DomainTokenBurns)
			found, err := set.Contains("sig1")
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestOpenExistingStoresWantsBadgerDirectory(t *testing.T) {
	dataDir := t.TempDir()
	_, err := OpenExistingStores(zap.NewNop(), BackendBadger, dataDir)
	require.Error(t, err)
	_, err = os.Stat(filepath.Join(dataDir, badgerDir))
	assert.True(t, os.IsNotExist(err))
}
