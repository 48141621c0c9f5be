package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSummary(t *testing.T) {
	def := &CommandDefinition{
		ID:           "deploy-service",
		Name:         "deploy service",
		NameTemplate: "Deploy {Service} to {Environment}",
	}

	t.Run("substitutes placeholders", func(t *testing.T) {
		got := ResolveSummary(def, map[string]string{"service": "api", "environment": "prod"})
		assert.Equal(t, "Deploy api to prod", got)
	})

	t.Run("unmatched placeholders stay visible", func(t *testing.T) {
		got := ResolveSummary(def, map[string]string{"service": "api"})
		assert.Equal(t, "Deploy api to {Environment}", got)
	})

	t.Run("blank template falls back to title-cased name", func(t *testing.T) {
		plain := &CommandDefinition{ID: "compact-segments", Name: "compact segments"}
		assert.Equal(t, "Compact Segments", ResolveSummary(plain, nil))

		blank := &CommandDefinition{ID: "x", Name: "reindex", NameTemplate: "   "}
		assert.Equal(t, "Reindex", ResolveSummary(blank, nil))
	})
}

type providerBody struct{}

func (providerBody) CommandProperties() map[string]string {
	return map[string]string{"Service": "api", "Region": "eu-west"}
}

func TestDisplayProperties(t *testing.T) {
	t.Run("struct bodies use exported fields", func(t *testing.T) {
		body := struct {
			Service string
			Count   int
			hidden  string
		}{Service: "api", Count: 3, hidden: "x"}

		props := DisplayProperties(&CommandDefinition{ID: "d"}, body)
		assert.Equal(t, map[string]string{"service": "api", "count": "3"}, props)
	})

	t.Run("pointer bodies are dereferenced", func(t *testing.T) {
		body := &struct{ Service string }{Service: "api"}
		props := DisplayProperties(&CommandDefinition{ID: "d"}, body)
		assert.Equal(t, map[string]string{"service": "api"}, props)
	})

	t.Run("map bodies are copied with camel-case keys", func(t *testing.T) {
		props := DisplayProperties(&CommandDefinition{ID: "d"}, map[string]any{"Service": "api", "Count": 3})
		assert.Equal(t, map[string]string{"service": "api", "count": "3"}, props)
	})

	t.Run("property providers are used as-is", func(t *testing.T) {
		props := DisplayProperties(&CommandDefinition{ID: "d"}, providerBody{})
		assert.Equal(t, map[string]string{"service": "api", "region": "eu-west"}, props)
	})

	t.Run("declared parameters filter the set", func(t *testing.T) {
		def := &CommandDefinition{
			ID:         "d",
			Parameters: []Parameter{{ID: "service", Name: "Service"}},
		}
		body := struct{ Service, Secret string }{Service: "api", Secret: "hunter2"}

		props := DisplayProperties(def, body)
		assert.Equal(t, map[string]string{"service": "api"}, props)
	})

	t.Run("nil and scalar bodies yield nothing", func(t *testing.T) {
		assert.Empty(t, DisplayProperties(&CommandDefinition{ID: "d"}, nil))
		assert.Empty(t, DisplayProperties(&CommandDefinition{ID: "d"}, 42))
	})
}
