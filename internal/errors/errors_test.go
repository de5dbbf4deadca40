package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderBuildsEnhancedError(t *testing.T) {
	err := New(ErrInsufficientData).
		Component("smooth").
		Category(CategoryInsufficientData).
		GroupContext("Vespa velutina", "FR").
		Context("months", 12).
		Build()

	require.NotNil(t, err)
	assert.Equal(t, "insufficient data", err.Error())
	assert.Equal(t, "smooth", err.Component)
	assert.Equal(t, CategoryInsufficientData, err.Category)
	assert.False(t, err.Timestamp.IsZero())

	ctx := err.GetContext()
	assert.Equal(t, "Vespa velutina", ctx["species"])
	assert.Equal(t, "FR", ctx["country"])
	assert.Equal(t, 12, ctx["months"])
}

func TestSentinelMatching(t *testing.T) {
	err := New(ErrInsufficientData).
		Category(CategoryInsufficientData).
		Build()

	assert.True(t, Is(err, ErrInsufficientData))
	assert.False(t, Is(err, ErrFitFailure))

	var enhanced *EnhancedError
	require.True(t, As(err, &enhanced))
	assert.Equal(t, CategoryInsufficientData, enhanced.Category)
}

func TestCategoryMatching(t *testing.T) {
	a := New(stderrors.New("boom")).Category(CategoryDatabase).Build()
	b := New(stderrors.New("other")).Category(CategoryDatabase).Build()
	c := New(stderrors.New("other")).Category(CategoryValidation).Build()

	assert.True(t, Is(a, b), "same category matches")
	assert.False(t, Is(a, c), "different category does not")
}

func TestNewfWrapsCause(t *testing.T) {
	cause := stderrors.New("original")
	err := Newf("reading table: %w", cause).
		Category(CategoryFileParsing).
		FileContext("/data/monthly.csv", 42).
		Build()

	assert.True(t, Is(err, cause))
	assert.Equal(t, "reading table: original", err.Error())

	ctx := err.GetContext()
	assert.Equal(t, "/data/monthly.csv", ctx["file_path"])
	assert.Equal(t, 42, ctx["line"])
}

func TestGetContextCopies(t *testing.T) {
	err := New(ErrFitFailure).Context("basis", 9).Build()

	ctx := err.GetContext()
	ctx["basis"] = 99
	assert.Equal(t, 9, err.GetContext()["basis"])

	bare := New(ErrFitFailure).Build()
	assert.Nil(t, bare.GetContext())
}
