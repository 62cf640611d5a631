package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONBlock(t *testing.T) {
	assert.Equal(t, `{"entities": []}`, CleanJSONBlock("```json\n{\"entities\": []}\n```"))
	assert.Equal(t, `{"entities": []}`, CleanJSONBlock("```\n{\"entities\": []}\n```"))
	assert.Equal(t, `{"entities": []}`, CleanJSONBlock(`  {"entities": []}  `))
	assert.Equal(t, "", CleanJSONBlock("```json\n```"))
}

func TestConfig_GetModel(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotEmpty(t, cfg.GetModel(TierLite))
	assert.NotEmpty(t, cfg.GetModel(TierStandard))

	// Unknown tiers fall back to the standard model.
	assert.Equal(t, cfg.GetModel(TierStandard), cfg.GetModel(ModelTier("nonsense")))
}

func TestBuildPrompt_AppendsSectionText(t *testing.T) {
	schema := GuidelineEntitySchema()
	prompt := schema.BuildPrompt("Offer metformin as first-line treatment.")

	assert.Contains(t, prompt, schema.Prompt)
	assert.Contains(t, prompt, "TEXT:")
	assert.Contains(t, prompt, "Offer metformin as first-line treatment.")
}

func TestGuidelineEntitySchema_Validate(t *testing.T) {
	schema := GuidelineEntitySchema()

	valid := `{"entities": [
		{"type": "recommendation", "text": "Offer metformin.", "name": "", "strength": "strong"},
		{"type": "intervention", "text": "", "name": "metformin", "strength": ""}
	]}`
	assert.NoError(t, schema.Validate(valid))
	assert.NoError(t, schema.Validate(`{"entities": []}`))

	err := schema.Validate(`{"entities": [{"type": "medication"}]}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "violates schema")

	assert.Error(t, schema.Validate(`{"wrong_key": []}`))
	assert.Error(t, schema.Validate(`not json at all`))
}

func TestStudySchema_Validate(t *testing.T) {
	schema := StudySchema()

	valid := `{"studies": [
		{"citation": "Zinman B et al. NEJM 2015.", "title": "", "year": "2015", "doi": "10.1056/nejmoa1504720", "pmid": ""}
	]}`
	assert.NoError(t, schema.Validate(valid))

	// citation is the one required field per study.
	err := schema.Validate(`{"studies": [{"title": "No citation"}]}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "citation")
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(context.DeadlineExceeded))
	assert.True(t, Transient(fmt.Errorf("googleapi: Error 429: resource exhausted")))
	assert.True(t, Transient(fmt.Errorf("connection reset by peer")))

	assert.False(t, Transient(nil))
	assert.False(t, Transient(fmt.Errorf("API key not valid")))
	assert.False(t, Transient(fmt.Errorf("googleapi: Error 400: invalid argument")))
	assert.False(t, Transient(fmt.Errorf("response blocked by safety settings")))
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	client, err := NewGeminiClient(context.Background(), nil, "")
	assert.Error(t, err)
	assert.Nil(t, client)
}
