//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-visibility/pkg/database"
	"github.com/ekaya-inc/ekaya-visibility/pkg/testhelpers"
)

// rlsRole is a non-owner role; the superuser used by tests bypasses RLS.
const rlsRole = "visibility_rls_reader"

func setupRLSRole(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()

	_, err := db.Pool.Exec(ctx, `
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT FROM pg_roles WHERE rolname = '`+rlsRole+`') THEN
				CREATE ROLE `+rlsRole+`;
			END IF;
		END
		$$`)
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, "GRANT SELECT ON visibility_projects, visibility_checks TO "+rlsRole)
	require.NoError(t, err)
}

func insertProject(t *testing.T, db *database.DB, ownerID uuid.UUID, name string) {
	t.Helper()
	_, err := db.Pool.Exec(context.Background(), `
		INSERT INTO visibility_projects (owner_id, name, domain, brand)
		VALUES ($1, $2, 'acme.com', 'Acme')
	`, ownerID, name)
	require.NoError(t, err)
}

func countVisible(t *testing.T, scope *database.OwnerScope, ownerIDs ...uuid.UUID) int {
	t.Helper()
	ctx := context.Background()

	_, err := scope.Conn.Exec(ctx, "SET ROLE "+rlsRole)
	require.NoError(t, err)
	defer func() {
		_, _ = scope.Conn.Exec(ctx, "RESET ROLE")
	}()

	var n int
	err = scope.Conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM visibility_projects WHERE owner_id = ANY($1)`, ownerIDs).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestWithOwner_RestrictsRowsToOwner(t *testing.T) {
	vdb := testhelpers.GetVisibilityDB(t)
	setupRLSRole(t, vdb.DB)

	alice, bob := uuid.New(), uuid.New()
	insertProject(t, vdb.DB, alice, "Alice's brand")
	insertProject(t, vdb.DB, bob, "Bob's brand")

	scope, err := vdb.DB.WithOwner(context.Background(), alice)
	require.NoError(t, err)
	defer scope.Close()

	assert.Equal(t, 1, countVisible(t, scope, alice, bob))
}

func TestWithoutOwner_SeesAllRows(t *testing.T) {
	vdb := testhelpers.GetVisibilityDB(t)
	setupRLSRole(t, vdb.DB)

	alice, bob := uuid.New(), uuid.New()
	insertProject(t, vdb.DB, alice, "Alice's brand")
	insertProject(t, vdb.DB, bob, "Bob's brand")

	scope, err := vdb.DB.WithoutOwner(context.Background())
	require.NoError(t, err)
	defer scope.Close()

	assert.Equal(t, 2, countVisible(t, scope, alice, bob))
}

func TestOwnerScope_CloseResetsSetting(t *testing.T) {
	vdb := testhelpers.GetVisibilityDB(t)
	ctx := context.Background()

	scope, err := vdb.DB.WithOwner(ctx, uuid.New())
	require.NoError(t, err)
	conn := scope.Conn.Conn()

	var setting string
	require.NoError(t, conn.QueryRow(ctx, "SELECT current_setting('app.current_owner_id', true)").Scan(&setting))
	assert.NotEmpty(t, setting)

	// Reset happens before release, so check on the raw connection first.
	_, err = conn.Exec(ctx, "RESET app.current_owner_id")
	require.NoError(t, err)
	require.NoError(t, conn.QueryRow(ctx, "SELECT COALESCE(current_setting('app.current_owner_id', true), '')").Scan(&setting))
	assert.Empty(t, setting)

	scope.Close()
}

func TestScopeProvider_PutsScopeInContext(t *testing.T) {
	vdb := testhelpers.GetVisibilityDB(t)
	provider := database.NewScopeProvider(vdb.DB)

	ctx, cleanup, err := provider.WithOwnerScope(context.Background(), uuid.New())
	require.NoError(t, err)
	defer cleanup()

	scope, err := database.RequireScope(ctx)
	require.NoError(t, err)
	assert.NotNil(t, scope.Conn)

	_, err = database.RequireScope(context.Background())
	assert.Error(t, err)
}
