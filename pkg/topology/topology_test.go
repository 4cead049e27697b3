package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/analystd/pkg/domain"
	"github.com/kadirpekel/analystd/pkg/tool"
	"github.com/kadirpekel/analystd/pkg/topology/prompts"
)

type stubAdapter struct{ name string }

func (s stubAdapter) Spec() domain.ToolSpec { return domain.ToolSpec{Name: s.name} }
func (s stubAdapter) Call(ctx context.Context, args map[string]any) (*domain.ToolResult, error) {
	return &domain.ToolResult{}, nil
}

func newTestCatalog() *tool.Catalog {
	c := tool.NewCatalog()
	c.Register(stubAdapter{name: "sql_query"})
	c.Register(stubAdapter{name: "doc_search"})
	c.Register(stubAdapter{name: "web_search"})
	return c
}

func TestBuildSQLOnlyRestrictsToolsToSQL(t *testing.T) {
	topo, err := Build(domain.ModeSQLOnly, prompts.Default(), newTestCatalog())
	require.NoError(t, err)
	assert.Equal(t, ResponsesStyle, topo.ClientShape)
	assert.Equal(t, []string{"sql_query"}, topo.EntryAllowedTools)
}

func TestBuildMultiToolIncludesAllCatalogTools(t *testing.T) {
	topo, err := Build(domain.ModeMultiTool, prompts.Default(), newTestCatalog())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sql_query", "doc_search", "web_search"}, topo.EntryAllowedTools)
}

func TestBuildHandoffHasThreeSpecialistsAndNoDirectTools(t *testing.T) {
	topo, err := Build(domain.ModeHandoff, prompts.Default(), newTestCatalog())
	require.NoError(t, err)
	assert.Equal(t, ChatStyle, topo.ClientShape)
	assert.Empty(t, topo.EntryAllowedTools)
	require.Len(t, topo.Specialists, 3)
	sql, ok := topo.SpecialistByName("sql")
	require.True(t, ok)
	assert.Equal(t, []string{"sql_query"}, sql.AllowedTools)
}

func TestBuildMagenticUsesChatStyleWithAllTools(t *testing.T) {
	topo, err := Build(domain.ModeMagentic, prompts.Default(), newTestCatalog())
	require.NoError(t, err)
	assert.Equal(t, ChatStyle, topo.ClientShape)
	assert.Len(t, topo.EntryAllowedTools, 3)
}

func TestFilterDistinguishesNilFromEmpty(t *testing.T) {
	catalog := newTestCatalog()
	assert.Len(t, Filter(catalog, nil), 3)
	assert.Empty(t, Filter(catalog, []string{}))
	assert.Len(t, Filter(catalog, []string{"sql_query"}), 1)
}
