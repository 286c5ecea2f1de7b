package ocean

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameGraphHelpers(t *testing.T) {
	var g FrameGraph
	a := g.add("a", NodeLaunch, nil)
	b := g.add("b", NodeAcquire, []int{a, a, -1})
	c := g.add("c", NodeLaunch, []int{b})
	d := g.add("d", NodeLaunch, []int{b})
	e := g.add("e", NodeRelease, []int{c, d})

	assert.Equal(t, []int{a}, g.Nodes[b].Deps)
	assert.True(t, g.Acyclic())
	assert.Equal(t, []int{e}, g.Terminals())
	assert.Equal(t, []int{e}, g.TerminalsFrom(b))
	assert.Equal(t, b, g.Find(NodeAcquire))
	assert.Equal(t, -1, g.Find(NodeMarker))

	cl := g.Clone()
	cl.Nodes[e].Deps[0] = 99
	assert.Equal(t, c, g.Nodes[e].Deps[0])

	g.Nodes[a].Deps = []int{e}
	assert.False(t, g.Acyclic())
}

func TestFrameGraphSingleTerminal(t *testing.T) {
	for _, sched := range []SchedulerKind{SchedulerInOrder, SchedulerGraph} {
		for _, foam := range []FoamTechnique{FoamNone, FoamThreshold, FoamFluid} {
			for _, shared := range []bool{false, true} {
				t.Run(fmt.Sprintf("%s/%s/shared=%v", sched, foam, shared), func(t *testing.T) {
					cfg := smallConfig()
					cfg.Scheduler = sched
					cfg.FoamTechnique = foam
					sim := newSim(t, cfg, shared)
					require.Equal(t, shared, sim.Shared())

					for i := range 2 {
						_, err := sim.Tick(frameAt(16 * i))
						require.NoError(t, err)
					}
					g := sim.Graph()
					require.True(t, g.Acyclic())
					acq := g.Find(NodeAcquire)
					require.GreaterOrEqual(t, acq, 0)
					terms := g.TerminalsFrom(acq)
					require.Len(t, terms, 1)
					assert.Equal(t, NodeRelease, g.Nodes[terms[0]].Kind)
					assert.Equal(t, terms, g.Terminals())
				})
			}
		}
	}
}
