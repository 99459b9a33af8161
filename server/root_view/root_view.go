package root_view

import (
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"sdmrl/models"
	"sdmrl/server/cell_views"
	"sdmrl/server/fastview"
	"sdmrl/server/progress_views"

	channerics "github.com/niceyeti/channerics/channels"
)

// batchRate is the period over which view updates are merged before sending.
const batchRate = 100 * time.Millisecond

// PageModel is the data with which the main page is rendered.
type PageModel struct {
	// Cells is nil unless the environment is a grid world.
	Cells    [][]cell_views.Cell
	Progress progress_views.Progress
}

// RootView is the main page's index.html, which is the container for all the
// view components, the wiring for their channels, etc.
type RootView struct {
	cellViews     []fastview.ViewComponent
	progressViews []fastview.ViewComponent
	updates       <-chan []fastview.EleUpdate

	mu     sync.RWMutex
	latest PageModel
}

// NewRootView creates the main page and the views it contains. The initial snapshot
// determines which views exist: cell views only for grid worlds.
func NewRootView(
	ctx context.Context,
	initial *models.Snapshot,
	snapshots <-chan *models.Snapshot,
) (*RootView, error) {
	rv := &RootView{
		latest: PageModel{
			Cells:    cell_views.FromSnapshot(initial),
			Progress: progress_views.FromSnapshot(initial),
		},
	}

	withCells := rv.latest.Cells != nil
	numOutputs := 2
	if withCells {
		numOutputs++
	}
	outputs := channerics.Broadcast(ctx.Done(), snapshots, numOutputs)

	var err error
	rv.progressViews, err = fastview.NewViewBuilder[*models.Snapshot, progress_views.Progress]().
		WithContext(ctx).
		WithModel(outputs[0], progress_views.FromSnapshot).
		WithView(func(
			done <-chan struct{},
			progress <-chan progress_views.Progress) fastview.ViewComponent {
			return progress_views.NewLearningCurve(done, progress)
		}).
		WithView(func(
			done <-chan struct{},
			progress <-chan progress_views.Progress) fastview.ViewComponent {
			return progress_views.NewCodebookMesh(done, progress)
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("progress views: %w", err)
	}

	if withCells {
		initialCells := rv.latest.Cells
		rv.cellViews, err = fastview.NewViewBuilder[*models.Snapshot, [][]cell_views.Cell]().
			WithContext(ctx).
			WithModel(outputs[2], cell_views.FromSnapshot).
			WithView(func(
				done <-chan struct{},
				cells <-chan [][]cell_views.Cell) fastview.ViewComponent {
				return cell_views.NewValuesGrid(done, cells)
			}).
			WithView(func(
				done <-chan struct{},
				cells <-chan [][]cell_views.Cell) fastview.ViewComponent {
				return cell_views.NewValueFunction(done, initialCells, cells)
			}).
			Build()
		if err != nil {
			return nil, fmt.Errorf("cell views: %w", err)
		}
	}

	// Track the latest snapshot so that newly loaded pages start from the current state.
	go func() {
		for snapshot := range outputs[1] {
			rv.setLatest(snapshot)
		}
	}()

	rv.updates = fastview.FanIn(
		ctx.Done(),
		append(append([]fastview.ViewComponent{}, rv.progressViews...), rv.cellViews...),
		batchRate)
	return rv, nil
}

func (rv *RootView) setLatest(snapshot *models.Snapshot) {
	model := PageModel{Progress: progress_views.FromSnapshot(snapshot)}
	if rv.cellViews != nil {
		model.Cells = cell_views.FromSnapshot(snapshot)
	}

	rv.mu.Lock()
	defer rv.mu.Unlock()
	rv.latest = model
}

// Model returns the page model of the most recent snapshot.
func (rv *RootView) Model() PageModel {
	rv.mu.RLock()
	defer rv.mu.RUnlock()
	return rv.latest
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// It also sets up the func-map that many child components depend on.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(
		template.FuncMap{
			"add":  func(i, j int) int { return i + j },
			"sub":  func(i, j int) int { return i - j },
			"mult": func(i, j int) int { return i * j },
			"div":  func(i, j int) int { return i / j },
		})

	// Specify the nested templates, each executed with its part of the page model.
	var bodySpec string
	for _, group := range []struct {
		field string
		views []fastview.ViewComponent
	}{
		{field: ".Progress", views: rv.progressViews},
		{field: ".Cells", views: rv.cellViews},
	} {
		for _, vc := range group.views {
			tname, parseErr := vc.Parse(rt)
			if parseErr != nil {
				return "", parseErr
			}
			bodySpec += `{{ template "` + tname + `" ` + group.field + ` }}`
		}
	}

	// The main template bootstraps the rest: sets up client websocket and updates, aggregates views.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<title>sdmrl</title>
			<!--This is the client bootstrap code by which the server pushes new data to the view via websocket.-->
			<script>
				const scheme = location.protocol === "https:" ? "wss://" : "ws://";
				const ws = new WebSocket(scheme + location.host + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				// Listen for errors
				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				// When the server pushes view updates, find these eles and update them.
				ws.onmessage = function (event) {
					const items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (ele === null) {
							continue
						}
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value)
							}
						}
					}
				}
			</script>
		</head>
		<body style="display: flex; flex-wrap: wrap;">
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}
