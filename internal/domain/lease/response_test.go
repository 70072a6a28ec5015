package lease

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePageResponse(t *testing.T) {
	t.Run("data payload", func(t *testing.T) {
		resp, err := DecodePageResponse([]byte(`{"success":true,"data":{"clauses":[{"id":"a"},{"id":"b"}],"summary":"ok","risk_score":42}}`))
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Len(t, resp.Payload.Clauses, 2)
		assert.Equal(t, "ok", SummaryText(resp.Payload.Summary))
		require.NotNil(t, resp.Payload.RiskScore)
		assert.Equal(t, 42.0, *resp.Payload.RiskScore)
	})

	t.Run("top level payload when data is missing", func(t *testing.T) {
		resp, err := DecodePageResponse([]byte(`{"success":true,"clauses":[{"id":"a"}]}`))
		require.NoError(t, err)
		assert.Len(t, resp.Payload.Clauses, 1)
		assert.Nil(t, resp.Payload.RiskScore)
		assert.Nil(t, resp.Payload.Summary)
	})

	t.Run("logical failure", func(t *testing.T) {
		resp, err := DecodePageResponse([]byte(`{"success":false,"error":"blurry photo"}`))
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, "blurry photo", resp.Error)
	})

	t.Run("clauses not an array", func(t *testing.T) {
		resp, err := DecodePageResponse([]byte(`{"success":true,"data":{"clauses":"nope"}}`))
		require.NoError(t, err)
		assert.Empty(t, resp.Payload.Clauses)
	})

	t.Run("non object clause kept as empty", func(t *testing.T) {
		resp, err := DecodePageResponse([]byte(`{"success":true,"data":{"clauses":[1,{"id":"x"}]}}`))
		require.NoError(t, err)
		require.Len(t, resp.Payload.Clauses, 2)
		assert.Empty(t, resp.Payload.Clauses[0])
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DecodePageResponse([]byte(`<html>`))
		assert.Error(t, err)
	})
}

func TestSummaryText(t *testing.T) {
	assert.Equal(t, "plain", SummaryText("plain"))
	assert.Equal(t, "fees", SummaryText(map[string]any{"late_fee_summary_zh": "fees", "early_termination_risk_zh": "term"}))
	assert.Equal(t, "term", SummaryText(map[string]any{"early_termination_risk_zh": "term"}))
	assert.Equal(t, "", SummaryText(map[string]any{"other": "x"}))
	assert.Equal(t, "", SummaryText(42.0))
}
