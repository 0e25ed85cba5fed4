package mask_views

import (
	"fmt"
	"html/template"
	"sync/atomic"

	"gnneval/atomic_float"
	"gnneval/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// Tally shows how many scenarios have been compared so far and each producer's
// running mean reward. The means are read by the page template while updates
// arrive, so they are kept in lock-free accumulators.
type Tally struct {
	id      string
	updates <-chan []fastview.EleUpdate

	n     atomic.Int64
	means map[string]*atomic_float.Mean
}

func NewTally(
	done <-chan struct{},
	panels <-chan []Panel,
) (tv *Tally) {
	tv = &Tally{
		id: "tally",
		means: map[string]*atomic_float.Mean{
			GT:     {},
			PRED:   {},
			RANDOM: {},
		},
	}
	tv.updates = channerics.Convert(done, panels, tv.onUpdate)
	return
}

func (tv *Tally) Updates() <-chan []fastview.EleUpdate {
	return tv.updates
}

// Count returns the number of comparisons seen.
func (tv *Tally) Count() int {
	return int(tv.n.Load())
}

// Mean returns the running mean reward of the producer with the passed panel id.
// Unknown ids read as zero.
func (tv *Tally) Mean(id string) float64 {
	if mean, ok := tv.means[id]; ok {
		return mean.Value()
	}
	return 0
}

func (tv *Tally) onUpdate(
	panels []Panel,
) (ops []fastview.EleUpdate) {
	for _, panel := range panels {
		if mean, ok := tv.means[panel.Id]; ok {
			mean.Observe(panel.Reward)
		}
	}
	count := tv.n.Add(1)

	ops = append(ops, fastview.EleUpdate{
		EleId: tv.id + "-count",
		Ops: []fastview.Op{
			{Key: fastview.TextContent, Value: fmt.Sprintf("%d", count)},
		},
	})
	for _, panel := range panels {
		ops = append(ops, fastview.EleUpdate{
			EleId: panel.Id + "-mean",
			Ops: []fastview.Op{
				{Key: fastview.TextContent, Value: formatMean(tv.Mean(panel.Id))},
			},
		})
	}
	return
}

func formatMean(mean float64) string {
	return fmt.Sprintf("%.3f", mean)
}

// Parse defines the tally table. Rows come from the panels the page is executed
// with; the values come from the tally's current state.
func (tv *Tally) Parse(
	t *template.Template,
) (name string, err error) {
	name = tv.id
	_, err = t.Funcs(template.FuncMap{
		"tallyCount": tv.Count,
		"tallyMean": func(id string) string {
			return formatMean(tv.Mean(id))
		},
	}).Parse(
		`{{ define "` + name + `" }}
		<div id="` + tv.id + `" style="padding:24px; font-family:monospace;">
			<div>scenarios compared: <span id="` + tv.id + `-count">{{ tallyCount }}</span></div>
			<table>
			{{ range $panel := . }}
				<tr><td>{{ $panel.Id }}</td><td id="{{ $panel.Id }}-mean">{{ tallyMean $panel.Id }}</td></tr>
			{{ end }}
			</table>
		</div>
		{{ end }}`)
	return
}
