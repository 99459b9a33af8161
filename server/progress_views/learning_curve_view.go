package progress_views

import (
	"fmt"
	"html/template"

	"sdmrl/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// LearningCurve shows the readouts and a polyline of the recent episodic returns.
type LearningCurve struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewLearningCurve(
	done <-chan struct{},
	progress <-chan Progress,
) (lc *LearningCurve) {
	lc = &LearningCurve{id: "learningcurve"}
	lc.updates = channerics.Convert(done, progress, lc.onUpdate)
	return
}

func (lc *LearningCurve) Updates() <-chan []fastview.EleUpdate {
	return lc.updates
}

func (lc *LearningCurve) onUpdate(prog Progress) (ops []fastview.EleUpdate) {
	for _, readout := range prog.Readouts {
		ops = append(ops, fastview.EleUpdate{
			EleId: readout.Id,
			Ops:   []fastview.Op{{Key: fastview.TextContent, Value: readout.Value}},
		})
	}
	ops = append(ops,
		fastview.EleUpdate{
			EleId: lc.id + "-line",
			Ops:   []fastview.Op{{Key: "points", Value: prog.Curve}},
		},
		fastview.EleUpdate{
			EleId: lc.id + "-max",
			Ops:   []fastview.Op{{Key: fastview.TextContent, Value: fmt.Sprintf("%.1f", prog.MaxReturn)}},
		},
		fastview.EleUpdate{
			EleId: lc.id + "-min",
			Ops:   []fastview.Op{{Key: fastview.TextContent, Value: fmt.Sprintf("%.1f", prog.MinReturn)}},
		},
	)
	return
}

func (lc *LearningCurve) Parse(t *template.Template) (name string, err error) {
	name = lc.id
	_, err = t.New(name).Parse(
		`<div id="readouts" style="font-family: monospace; padding: 10px;">
			<table>
			{{ range .Readouts }}
				<tr><td>{{ .Label }}</td><td id="{{ .Id }}">{{ .Value }}</td></tr>
			{{ end }}
			</table>
		</div>
		<div style="padding: 10px;">
			<svg id="` + lc.id + `" xmlns='http://www.w3.org/2000/svg'
				width="` + fmt.Sprintf("%d", curveWidth+60) + `px"
				height="` + fmt.Sprintf("%d", curveHeight+20) + `px">
				<g transform="translate(50 10)">
					<rect width="` + fmt.Sprintf("%d", curveWidth) + `" height="` + fmt.Sprintf("%d", curveHeight) + `"
						fill="none" stroke="lightgray"/>
					<text id="` + lc.id + `-max" x="-5" y="0" text-anchor="end" dominant-baseline="central"
						>{{ printf "%.1f" .MaxReturn }}</text>
					<text id="` + lc.id + `-min" x="-5" y="` + fmt.Sprintf("%d", curveHeight) + `" text-anchor="end" dominant-baseline="central"
						>{{ printf "%.1f" .MinReturn }}</text>
					<polyline id="` + lc.id + `-line" fill="none" stroke="blue" stroke-width="1.5"
						points="{{ .Curve }}"/>
				</g>
			</svg>
		</div>`)
	return
}
