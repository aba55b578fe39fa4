package database_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"warehouse-system/internal/database"
	"warehouse-system/internal/database/dbtest"
	"warehouse-system/internal/database/models"
)

func TestNewConnectionRequiresDSN(t *testing.T) {
	_, err := database.NewConnection("")
	assert.Error(t, err)
}

func TestMigrateCreatesUniquePairIndex(t *testing.T) {
	db := dbtest.New(t)

	product := models.Product{EAN: "4006381333931", Name: "Pen", Image: models.DefaultProductImage}
	warehouse := models.Warehouse{Name: "North", Location: "Oslo"}
	require.NoError(t, db.Create(&product).Error)
	require.NoError(t, db.Create(&warehouse).Error)

	stock := models.Stock{
		ProductID:         product.ID,
		WarehouseID:       warehouse.ID,
		WarehouseCapacity: 10,
		StoreCapacity:     10,
		Price:             decimal.RequireFromString("2.5"),
		WhenToNotify:      100,
	}
	require.NoError(t, db.Create(&stock).Error)

	dup := stock
	dup.ID = 0
	err := db.Create(&dup).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	var loaded models.Stock
	require.NoError(t, db.First(&loaded, stock.ID).Error)
	assert.True(t, loaded.Price.Equal(decimal.RequireFromString("2.5")))
}

func TestUserWarehouseAssociation(t *testing.T) {
	db := dbtest.New(t)

	warehouse := models.Warehouse{Name: "South", Location: "Rome"}
	require.NoError(t, db.Create(&warehouse).Error)
	user := models.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", PasswordHash: "x", Role: models.RoleManager}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Model(&user).Association("Warehouses").Append(&warehouse))

	var loaded models.User
	require.NoError(t, db.Preload("Warehouses").First(&loaded, user.ID).Error)
	require.Len(t, loaded.Warehouses, 1)
	assert.Equal(t, "Rome", loaded.Warehouses[0].Location)

	_, ok := models.RoleFromID(3)
	assert.False(t, ok)
	role, ok := models.RoleFromID(1)
	assert.True(t, ok)
	assert.Equal(t, models.RoleManager, role)
}
