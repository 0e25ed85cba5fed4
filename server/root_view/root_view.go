package root_view

import (
	"context"
	"html/template"
	"sync"
	"time"

	"gnneval/evaluation"
	"gnneval/server/fastview"
	"gnneval/server/mask_views"

	channerics "github.com/niceyeti/channerics/channels"
)

// batchRate is the window within which ele-updates are coalesced before sending.
const batchRate = time.Millisecond * 50

// RootView is the main page's index.html: the container for all the view
// components and the wiring for their channels.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate

	mu   sync.RWMutex
	last []mask_views.Panel
}

// NewRootView builds the page's views over a stream of scenario comparisons.
// gridSize sizes the blank panels rendered before the first comparison arrives.
func NewRootView(
	ctx context.Context,
	gridSize int,
	comparisons <-chan evaluation.Comparison,
) (*RootView, error) {
	rv := &RootView{
		last: mask_views.EmptyPanels(gridSize),
	}

	views, updates, err := fastview.NewPipeline[evaluation.Comparison, []mask_views.Panel](ctx, comparisons, rv.convert).
		Add(func(done <-chan struct{}, panels <-chan []mask_views.Panel) fastview.ViewComponent {
			return mask_views.NewMaskPanels(done, panels)
		}).
		Add(func(done <-chan struct{}, panels <-chan []mask_views.Panel) fastview.ViewComponent {
			return mask_views.NewTally(done, panels)
		}).
		Build()
	if err != nil {
		return nil, err
	}

	rv.views = views
	rv.updates = batchify(ctx.Done(), updates, batchRate)
	return rv, nil
}

// convert records the latest panels so that a page loaded mid-run starts from them.
func (rv *RootView) convert(cmp evaluation.Comparison) []mask_views.Panel {
	panels := mask_views.Convert(cmp)
	rv.mu.Lock()
	rv.last = panels
	rv.mu.Unlock()
	return panels
}

// Last returns the most recently converted panels.
func (rv *RootView) Last() []mask_views.Panel {
	rv.mu.RLock()
	defer rv.mu.RUnlock()
	return rv.last
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// It also sets up the func-map that the child components depend on.
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

	var bodySpec string
	for _, vc := range rv.views {
		var tname string
		if tname, err = vc.Parse(rt); err != nil {
			return
		}
		bodySpec += `{{ template "` + tname + `" . }}`
	}

	// The main template bootstraps the rest: sets up client websocket and updates, aggregates views.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<title>policy evaluation</title>
			<!--The client bootstrap code by which the server pushes new data to the view via websocket.-->
			<script>
				const ws = new WebSocket("ws://" + window.location.host + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				// When the server pushes view updates, find these eles and update them.
				ws.onmessage = function (event) {
					const items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (!ele) {
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
		<body>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}

// batchify coalesces updates, over-writing previously received values for the
// same ele-id, and sends the pending batch at most once per rate. It never
// blocks its source waiting on a reader: while nobody receives, updates keep
// coalescing, so only the latest value per ele-id is ever sent.
func batchify(
	done <-chan struct{},
	source <-chan []fastview.EleUpdate,
	rate time.Duration,
) <-chan []fastview.EleUpdate {
	output := make(chan []fastview.EleUpdate)

	go func() {
		defer close(output)

		ticker := channerics.NewTicker(done, rate)
		data := map[string]fastview.EleUpdate{}
		last := time.Time{}
		for {
			// A nil channel disables the send case until a batch is due.
			var out chan<- []fastview.EleUpdate
			var batch []fastview.EleUpdate
			if len(data) > 0 && time.Since(last) >= rate {
				out = output
				batch = slicedVals(data)
			}

			select {
			case <-done:
				return
			case updates, ok := <-source:
				if !ok {
					if len(data) > 0 {
						select {
						case output <- slicedVals(data):
						case <-done:
						}
					}
					return
				}
				for _, update := range updates {
					data[update.EleId] = update
				}
			case <-ticker:
			case out <- batch:
				data = map[string]fastview.EleUpdate{}
				last = time.Now()
			}
		}
	}()

	return output
}

// returns the values of a map as a slice
func slicedVals[T1 comparable, T2 any](mp map[T1]T2) (sliced []T2) {
	for _, v := range mp {
		sliced = append(sliced, v)
	}
	return
}
