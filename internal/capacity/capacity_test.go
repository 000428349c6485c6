package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/rota/internal/model"
)

func TestDefaultTable(t *testing.T) {
	tbl := Default()

	assert.Equal(t, 120, tbl.Minutes(model.ClassChild))
	assert.Equal(t, 240, tbl.Minutes(model.ClassTeen))
	assert.Equal(t, 360, tbl.Minutes(model.ClassParent))
	assert.Equal(t, 0, tbl.Minutes(model.ClassHelper))
	assert.True(t, tbl.Excluded(model.ClassHelper))
	assert.False(t, tbl.Excluded(model.ClassChild))
}

func TestUnknownClassIsExcluded(t *testing.T) {
	tbl := Default()
	assert.Equal(t, 0, tbl.Minutes(model.PersonClass("grandparent")))
	assert.True(t, tbl.Excluded(model.PersonClass("")))
}

func TestWithOverrides(t *testing.T) {
	base := Default()

	tbl, err := base.WithOverrides(map[string]int{"helper": 90, "child": 0})
	require.NoError(t, err)
	assert.Equal(t, 90, tbl.Minutes(model.ClassHelper))
	assert.True(t, tbl.Excluded(model.ClassChild))

	// The base table is untouched.
	assert.Equal(t, 120, base.Minutes(model.ClassChild))

	_, err = base.WithOverrides(map[string]int{"pet": 10})
	assert.Error(t, err)

	_, err = base.WithOverrides(map[string]int{"teen": -5})
	assert.Error(t, err)
}
