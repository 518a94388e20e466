package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrag/internal/config"
	"cvrag/internal/domain"
)

func TestNewSelectsImplementation(t *testing.T) {
	emb, err := New(context.Background(), config.EmbedderConfig{Type: "tfidf"})
	require.NoError(t, err)
	assert.Equal(t, "tfidf", emb.Name())

	t.Setenv("CVRAG_TEST_OPENAI", "sk-test")
	emb, err = New(context.Background(), config.EmbedderConfig{
		Type:   "openai",
		OpenAI: config.OpenAIEmbedderConfig{APIKeyEnv: "CVRAG_TEST_OPENAI", Model: "text-embedding-3-small"},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", emb.Name())
}

func TestNewReportsConfigurationErrors(t *testing.T) {
	var ce *domain.ConfigurationError

	_, err := New(context.Background(), config.EmbedderConfig{Type: "word2vec"})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "embedder.type", ce.Setting)

	_, err = New(context.Background(), config.EmbedderConfig{Type: "openai", OpenAI: config.OpenAIEmbedderConfig{APIKeyEnv: "CVRAG_TEST_UNSET_KEY"}})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "CVRAG_TEST_UNSET_KEY", ce.Setting)
}
