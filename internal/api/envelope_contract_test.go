package api

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

// getFixturePath returns the repository's testdata/envelope directory.
// Client tests embed matching JSON strings to verify parsing compatibility.
func getFixturePath(t *testing.T) string {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get caller info")

	repoDir := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	return filepath.Join(repoDir, "testdata", "envelope")
}

func readFixture(t *testing.T, name string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(getFixturePath(t), name))
	require.NoError(t, err, "contract tests require shared fixtures")

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func roundTrip(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEnvelopeContract_SuccessMatchesFixture(t *testing.T) {
	expected := readFixture(t, "success.json")

	result, err := EnvelopeTransformer(nil, "200", map[string]string{"id": "test-123", "name": "Test Item"})
	require.NoError(t, err)

	assert.Equal(t, expected, roundTrip(t, result))
}

func TestEnvelopeContract_SuccessNullDataMatchesFixture(t *testing.T) {
	expected := readFixture(t, "success_null_data.json")

	result, err := EnvelopeTransformer(nil, "204", nil)
	require.NoError(t, err)

	assert.Equal(t, expected, roundTrip(t, result))
}

func TestEnvelopeContract_SimpleErrorMatchesFixture(t *testing.T) {
	expected := readFixture(t, "error_simple.json")

	result, err := EnvelopeTransformer(nil, "404", &APIError{
		status:  404,
		Code:    string(domainerrors.CodeNotFound),
		Message: "Resource not found",
	})
	require.NoError(t, err)

	assert.Equal(t, expected, roundTrip(t, result))
}

func TestEnvelopeContract_DetailedErrorMatchesFixture(t *testing.T) {
	expected := readFixture(t, "error_detailed.json")

	domainErr := domainerrors.ValidationWithDetails("validation failed",
		map[string]string{"email": "must be a valid email address"})
	result, err := EnvelopeTransformer(nil, "400", domainErr)
	require.NoError(t, err)

	assert.Equal(t, expected, roundTrip(t, result))
}

// The version field must be named exactly "v"; clients key on it.
func TestEnvelopeContract_VersionFieldName(t *testing.T) {
	result, err := EnvelopeTransformer(nil, "200", nil)
	require.NoError(t, err)

	out := roundTrip(t, result)
	assert.Contains(t, out, "v")
	assert.NotContains(t, out, "version")
	assert.NotContains(t, out, "Version")
}

func TestEnvelopeTransformer_StatusWithoutAPIError(t *testing.T) {
	result, err := EnvelopeTransformer(nil, "429", assert.AnError)
	require.NoError(t, err)

	out := roundTrip(t, result)
	assert.Equal(t, false, out["success"])
	errObj, ok := out["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, codeRateLimited, errObj["code"])
	assert.Equal(t, assert.AnError.Error(), errObj["message"])
}
