package fastview

import (
	"context"
	"errors"
	"html/template"
	"strconv"
	"testing"

	channerics "github.com/niceyeti/channerics/channels"
	. "github.com/smartystreets/goconvey/convey"
)

// textView sets one element's text to each view-model it receives.
type textView struct {
	id      string
	updates <-chan []EleUpdate
}

func newTextView(id string) ViewFunc[string] {
	return func(done <-chan struct{}, models <-chan string) ViewComponent {
		tv := &textView{id: id}
		tv.updates = channerics.Convert(done, models, func(s string) []EleUpdate {
			return []EleUpdate{{EleId: tv.id, Ops: []Op{{Key: TextContent, Value: s}}}}
		})
		return tv
	}
}

func (tv *textView) Updates() <-chan []EleUpdate {
	return tv.updates
}

func (tv *textView) Parse(t *template.Template) (string, error) {
	_, err := t.Parse(`{{ define "` + tv.id + `" }}<span id="` + tv.id + `">{{ . }}</span>{{ end }}`)
	return tv.id, err
}

func TestPipeline(t *testing.T) {
	Convey("Pipeline tests", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		input := make(chan int)

		Convey("A pipeline without views is rejected", func() {
			_, _, err := NewPipeline[int, string](ctx, input, strconv.Itoa).Build()
			So(errors.Is(err, ErrNoViews), ShouldBeTrue)
		})

		Convey("A pipeline without a source is rejected", func() {
			_, _, err := NewPipeline[int, string](ctx, nil, strconv.Itoa).
				Add(newTextView("a")).
				Build()
			So(errors.Is(err, ErrNoSource), ShouldBeTrue)
		})

		Convey("Given a pipeline with two views", func() {
			views, updates, err := NewPipeline[int, string](ctx, input, strconv.Itoa).
				Add(newTextView("a")).
				Add(newTextView("b")).
				Build()
			So(err, ShouldBeNil)
			So(len(views), ShouldEqual, 2)
			So(views[0].(*textView).id, ShouldEqual, "a")

			Convey("Every view renders every item on the merged channel", func() {
				go func() {
					input <- 42
				}()
				seen := map[string]string{}
				for len(seen) < 2 {
					batch := <-updates
					for _, update := range batch {
						seen[update.EleId] = update.Ops[0].Value
					}
				}
				So(seen, ShouldResemble, map[string]string{"a": "42", "b": "42"})
			})

			Convey("The merged channel closes once the source is exhausted", func() {
				close(input)
				for range updates {
				}
				_, open := <-updates
				So(open, ShouldBeFalse)
			})
		})
	})
}
