package mask_views

import (
	"fmt"
	"html/template"

	"gnneval/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// cellDim is the cell height/width in pixels.
const cellDim = 16

// MaskPanels draws the ground truth, prediction and random panels side by side,
// each as an svg grid of cells whose fill shows reward and coverage.
type MaskPanels struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewMaskPanels(
	done <-chan struct{},
	panels <-chan []Panel,
) (mp *MaskPanels) {
	mp = &MaskPanels{id: "maskpanels"}
	mp.updates = channerics.Convert(done, panels, mp.onUpdate)
	return
}

func (mp *MaskPanels) Updates() <-chan []fastview.EleUpdate {
	return mp.updates
}

func cellId(panelId string, row, col int) string {
	return fmt.Sprintf("%s-%d-%d", panelId, row, col)
}

// Returns the set of view updates needed for the panels to reflect the latest comparison.
func (mp *MaskPanels) onUpdate(
	panels []Panel,
) (ops []fastview.EleUpdate) {
	for _, panel := range panels {
		ops = append(ops, fastview.EleUpdate{
			EleId: panel.Id + "-title",
			Ops: []fastview.Op{
				{Key: fastview.TextContent, Value: panel.Title},
			},
		})
		for _, row := range panel.Cells {
			for _, cell := range row {
				ops = append(ops, fastview.EleUpdate{
					EleId: cellId(panel.Id, cell.Row, cell.Col),
					Ops: []fastview.Op{
						{Key: "fill", Value: cell.Fill},
						{Key: "stroke", Value: cell.Stroke},
					},
				})
			}
		}
	}
	return
}

// Parse defines the panels template, which renders the []Panel it is executed with.
func (mp *MaskPanels) Parse(
	t *template.Template,
) (name string, err error) {
	name = mp.id
	_, err = t.Parse(
		`{{ define "` + name + `" }}
		<div id="` + mp.id + `" style="display:flex; gap:24px; padding:24px;">
		{{ range $panel := . }}
			{{ $size := len $panel.Cells }}
			{{ $dim := mult $size ` + fmt.Sprintf("%d", cellDim) + ` }}
			<div>
				<h3 id="{{ $panel.Id }}-title">{{ $panel.Title }}</h3>
				<svg xmlns='http://www.w3.org/2000/svg'
					width="{{ $dim }}px" height="{{ $dim }}px"
					style="shape-rendering: crispEdges; stroke-width: 1;">
				{{ range $row := $panel.Cells }}
					{{ range $cell := $row }}
						<rect id="{{ $panel.Id }}-{{ $cell.Row }}-{{ $cell.Col }}"
							x="{{ mult $cell.Col ` + fmt.Sprintf("%d", cellDim) + ` }}"
							y="{{ mult $cell.Row ` + fmt.Sprintf("%d", cellDim) + ` }}"
							width="` + fmt.Sprintf("%d", cellDim) + `" height="` + fmt.Sprintf("%d", cellDim) + `"
							fill="{{ $cell.Fill }}" stroke="{{ $cell.Stroke }}" />
					{{ end }}
				{{ end }}
				</svg>
			</div>
		{{ end }}
		</div>
		{{ end }}`)
	return
}
