package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilink/marketplace-backend/internal/database"
	"github.com/agrilink/marketplace-backend/internal/models"
	"github.com/agrilink/marketplace-backend/internal/testutil"
)

func TestSeedAdmin(t *testing.T) {
	db := testutil.NewTestDB(t)

	require.NoError(t, database.SeedAdmin(db, "", ""))
	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, database.SeedAdmin(db, "root@agrilink.in", "rootpass123"))
	require.NoError(t, database.SeedAdmin(db, "other@agrilink.in", "rootpass123"))

	var admins []models.User
	require.NoError(t, db.Where("role = ?", models.RoleAdmin).Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, "root@agrilink.in", admins[0].Email)
	assert.NoError(t, admins[0].CheckPassword("rootpass123"))
}
