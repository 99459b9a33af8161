package progress_views

import (
	"fmt"
	"html/template"

	"sdmrl/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// CodebookMesh draws the DSOM prototypes and their grid neighbourhood. It renders
// nothing for networks without a codebook. The prototype count is fixed per run, so the
// initial progress determines the elements.
type CodebookMesh struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewCodebookMesh(
	done <-chan struct{},
	progress <-chan Progress,
) (cm *CodebookMesh) {
	cm = &CodebookMesh{id: "codebookmesh"}
	cm.updates = channerics.Convert(done, progress, cm.onUpdate)
	return
}

func (cm *CodebookMesh) Updates() <-chan []fastview.EleUpdate {
	return cm.updates
}

func (cm *CodebookMesh) onUpdate(prog Progress) (ops []fastview.EleUpdate) {
	nodes := prog.Mesh.Nodes
	for i, node := range nodes {
		ops = append(ops, fastview.EleUpdate{
			EleId: fmt.Sprintf("codebook-node-%d", i),
			Ops: []fastview.Op{
				{Key: "cx", Value: fmt.Sprintf("%.1f", node.X)},
				{Key: "cy", Value: fmt.Sprintf("%.1f", node.Y)},
			},
		})
	}
	for _, edge := range prog.Mesh.Edges {
		from, to := nodes[edge.From], nodes[edge.To]
		ops = append(ops, fastview.EleUpdate{
			EleId: fmt.Sprintf("codebook-edge-%d-%d", edge.From, edge.To),
			Ops: []fastview.Op{
				{Key: "x1", Value: fmt.Sprintf("%.1f", from.X)},
				{Key: "y1", Value: fmt.Sprintf("%.1f", from.Y)},
				{Key: "x2", Value: fmt.Sprintf("%.1f", to.X)},
				{Key: "y2", Value: fmt.Sprintf("%.1f", to.Y)},
			},
		})
	}
	return
}

func (cm *CodebookMesh) Parse(t *template.Template) (name string, err error) {
	name = cm.id
	_, err = t.New(name).Parse(
		`{{ if .Mesh.Nodes }}
		{{ $nodes := .Mesh.Nodes }}
		<div style="padding: 10px;">
			<svg id="` + cm.id + `" xmlns='http://www.w3.org/2000/svg'
				width="` + fmt.Sprintf("%d", meshDim) + `px"
				height="` + fmt.Sprintf("%d", meshDim) + `px"
				style="border: 1px solid lightgray;">
				{{ range .Mesh.Edges }}
					{{ $from := index $nodes .From }}
					{{ $to := index $nodes .To }}
					<line id="codebook-edge-{{ .From }}-{{ .To }}" stroke="gray"
						x1="{{ $from.X }}" y1="{{ $from.Y }}" x2="{{ $to.X }}" y2="{{ $to.Y }}"/>
				{{ end }}
				{{ range $i, $node := $nodes }}
					<circle id="codebook-node-{{ $i }}" r="4" fill="darkorange"
						cx="{{ $node.X }}" cy="{{ $node.Y }}"/>
				{{ end }}
			</svg>
		</div>
		{{ end }}`)
	return
}
