package plan

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arena.grid/internal/arena"
)

func TestParse_SingleAgent(t *testing.T) {
	t.Parallel()

	table, err := Parse(strings.NewReader("agent 0: (1,1)->(1,2)->(2,2)->\n"))
	require.NoError(t, err)

	want := PathTable{{Agent: 0, Cells: []arena.Cell{{Row: 1, Col: 1}, {Row: 1, Col: 2}, {Row: 2, Col: 2}}}}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("table (-want +got):\n%s", diff)
	}
}

func TestParse_ToleratesSeparatorsAndBlanks(t *testing.T) {
	t.Parallel()

	in := "\nagent 1: (0,0)->->( 0 , 1 )->\n\n  agent 2:(3,4)  \n"
	table, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, []arena.Cell{{Row: 0, Col: 0}, {Row: 0, Col: 1}}, table[0].Cells)

	cells, ok := table.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, []arena.Cell{{Row: 3, Col: 4}}, cells)

	_, ok = table.Lookup(9)
	assert.False(t, ok)
}

func TestParse_MalformedLinesAreIsolated(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		"agent 0: (0,0)->(0,1)",
		"agent 1: (0,0)->(x,1)",
		"robot 2: (0,0)",
		"agent 3 (0,0)",
		"agent 4:",
		"agent 5: (2,2)->(2,3)->",
	}, "\n")

	table, err := Parse(strings.NewReader(in))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedLine))

	var agents []int
	for _, p := range table {
		agents = append(agents, p.Agent)
	}
	assert.Equal(t, []int{0, 5}, agents)

	aerrs := AgentErrors(err)
	require.Len(t, aerrs, 4)
	assert.Equal(t, 2, aerrs[0].Line)
	assert.Equal(t, 1, aerrs[0].Agent)
	assert.Equal(t, -1, aerrs[1].Agent)
	assert.Equal(t, -1, aerrs[2].Agent)
	assert.Equal(t, 4, aerrs[3].Agent)
	assert.Contains(t, aerrs[0].Error(), "agent 1")
}

func TestWritePlan_Format(t *testing.T) {
	t.Parallel()

	table := PathTable{
		{Agent: 0, Cells: []arena.Cell{{Row: 1, Col: 1}, {Row: 1, Col: 2}, {Row: 2, Col: 2}}},
		{Agent: 1, Cells: []arena.Cell{{Row: 4, Col: 0}}},
	}
	var buf bytes.Buffer
	require.NoError(t, WritePlan(&buf, table))

	want := "schedule:\n" +
		"\tagent0:\n" +
		"\t\t- x: 0\n\t\t y: 0\n\t\t t: 0\n" +
		"\t\t- x: 1\n\t\t y: 0\n\t\t t: 1\n" +
		"\t\t- x: 1\n\t\t y: -1\n\t\t t: 2\n" +
		"\tagent1:\n" +
		"\t\t- x: 0\n\t\t y: 0\n\t\t t: 0\n"
	assert.Equal(t, want, buf.String())
}

func TestSteps_UpIsNegativeRow(t *testing.T) {
	t.Parallel()

	steps := Steps(AgentPath{Cells: []arena.Cell{{Row: 5, Col: 5}, {Row: 4, Col: 5}, {Row: 4, Col: 3}}})
	assert.Equal(t, []Step{{0, 0, 0}, {0, 1, 1}, {-2, 1, 2}}, steps)
	assert.Nil(t, Steps(AgentPath{}))
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	table, err := Translate(strings.NewReader("agent 0: (1,1)->(1,2)->(2,2)\nagent 1: oops\n"), &out)
	require.Error(t, err)
	assert.Len(t, AgentErrors(err), 1)
	require.Len(t, table, 1)
	assert.True(t, strings.HasPrefix(out.String(), "schedule:\n\tagent0:\n\t\t- x: 0\n\t\t y: 0\n\t\t t: 0\n"))
	assert.NotContains(t, out.String(), "agent1")
}
