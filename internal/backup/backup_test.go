package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boswell-ai/boswell/internal/storage/sqlite"
	"github.com/boswell-ai/boswell/pkg/types"
)

// seedDatabase writes a small claim store to dbPath and returns the id.
func seedDatabase(t *testing.T, dbPath string) types.ClaimID {
	t.Helper()

	store, err := sqlite.NewClaimStore(dbPath, sqlite.Options{EmbeddingDimension: 2})
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	claim := &types.Claim{
		ID:             types.NewIDGenerator().NewID(now),
		Subject:        "Acme",
		Predicate:      "is",
		Object:         "backed-up",
		RawExpression:  "Acme is backed up",
		Embedding:      []float32{1, 0},
		BaseConfidence: types.ConfidenceInterval{Lo: 0.2, Hi: 0.9},
		Namespace:      "org",
		Tier:           types.TierTask,
		Status:         types.StatusActive,
		CreatedAt:      now,
		LastModified:   now,
		StalenessAt:    now.Add(time.Hour),
	}
	require.NoError(t, store.InsertClaim(context.Background(), claim, nil, "test"))
	return claim.ID
}

func TestBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "boswell.db")
	backupDir := filepath.Join(dir, "backups")
	id := seedDatabase(t, dbPath)

	svc, err := NewService(dbPath, "", backupDir, DefaultRetention(), true)
	require.NoError(t, err)

	result, err := svc.BackupNow(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, result.DatabasePath)
	assert.NotEmpty(t, result.Checksum)
	assert.Greater(t, result.Size, int64(0))

	// Damage the live database, then restore.
	require.NoError(t, os.WriteFile(dbPath, []byte("garbage"), 0o644))
	require.NoError(t, svc.Restore(context.Background(), result.DatabasePath))

	store, err := sqlite.NewClaimStore(dbPath, sqlite.Options{EmbeddingDimension: 2})
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "backed-up", got.Object)

	// The pre-restore safety copy exists.
	assert.FileExists(t, dbPath+".pre-restore")
}

func TestBackup_SnapshotsVectorSidecar(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "boswell.db")
	vecPath := filepath.Join(dir, "boswell.vec")
	seedDatabase(t, dbPath)
	require.NoError(t, os.WriteFile(vecPath, []byte("BSWVIDX1 sidecar bytes"), 0o644))

	svc, err := NewService(dbPath, vecPath, filepath.Join(dir, "backups"), DefaultRetention(), true)
	require.NoError(t, err)

	result, err := svc.BackupNow(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.VectorPath)
	assert.FileExists(t, result.VectorPath)
}

func TestRestore_RefusesCorruptBackup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "boswell.db")
	seedDatabase(t, dbPath)

	svc, err := NewService(dbPath, "", filepath.Join(dir, "backups"), DefaultRetention(), true)
	require.NoError(t, err)

	bogus := filepath.Join(dir, "bogus.db")
	require.NoError(t, os.WriteFile(bogus, []byte("not a database"), 0o644))

	err = svc.Restore(context.Background(), bogus)
	assert.Error(t, err)
}

func TestList_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "boswell.db")
	backupDir := filepath.Join(dir, "backups")
	seedDatabase(t, dbPath)

	svc, err := NewService(dbPath, "", backupDir, DefaultRetention(), false)
	require.NoError(t, err)

	_, err = svc.BackupNow(context.Background())
	require.NoError(t, err)

	backups, err := svc.List()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Greater(t, backups[0].Size, int64(0))
}

func TestNewService_RequiresDatabasePath(t *testing.T) {
	_, err := NewService("", "", t.TempDir(), DefaultRetention(), false)
	assert.Error(t, err)
}
