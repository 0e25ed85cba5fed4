package fastview

import (
	"context"
	"errors"

	channerics "github.com/niceyeti/channerics/channels"
)

// ViewFunc makes a view that renders each view-model it receives. The view
// must stop when done closes.
type ViewFunc[VM any] func(done <-chan struct{}, models <-chan VM) ViewComponent

// Pipeline feeds one stream of source items to every view on a page. Each item
// is converted to a view-model once and the result is broadcast to all views;
// their element updates come back out on a single merged channel.
type Pipeline[M any, VM any] struct {
	done    <-chan struct{}
	source  <-chan M
	convert func(M) VM
	views   []ViewFunc[VM]
}

// NewPipeline returns a pipeline over source that stops when ctx is done.
func NewPipeline[M any, VM any](
	ctx context.Context,
	source <-chan M,
	convert func(M) VM,
) *Pipeline[M, VM] {
	return &Pipeline[M, VM]{
		done:    ctx.Done(),
		source:  source,
		convert: convert,
	}
}

// Add appends a view. Build returns views in the order they were added.
func (p *Pipeline[M, VM]) Add(view ViewFunc[VM]) *Pipeline[M, VM] {
	p.views = append(p.views, view)
	return p
}

var ErrNoViews error = errors.New("pipeline has no views")

var ErrNoSource error = errors.New("pipeline has no source or converter")

// Build starts the pipeline. It returns the views and one channel carrying
// every view's element updates, which closes once all views are done.
func (p *Pipeline[M, VM]) Build() (
	views []ViewComponent,
	updates <-chan []EleUpdate,
	err error,
) {
	if len(p.views) == 0 {
		return nil, nil, ErrNoViews
	}
	if p.source == nil || p.convert == nil {
		return nil, nil, ErrNoSource
	}

	models := channerics.Broadcast(
		p.done,
		channerics.Convert(p.done, p.source, p.convert),
		len(p.views))

	outputs := make([]<-chan []EleUpdate, len(p.views))
	for i, makeView := range p.views {
		view := makeView(p.done, models[i])
		views = append(views, view)
		outputs[i] = view.Updates()
	}
	updates = channerics.Merge(p.done, outputs...)
	return
}
