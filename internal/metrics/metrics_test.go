package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManager(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		m := NewManager(WithConstLabels(map[string]string{"run": "r1"}))

		Convey("When batch outcomes are recorded", func() {
			m.TracksIngested(2, 3)
			m.PairsObserved("true", 4)
			m.PairsObserved("gated", 0)
			m.PairsObserved("conflict", 1)
			m.CellObserved("scored")
			m.CellObserved("scored")
			m.CellObserved("divergent")
			m.ItemFailed("fit")
			m.FitObserved(3 * time.Millisecond)
			m.BatchFinished(2*time.Second, 5, 8)

			Convey("Then the collectors reflect them", func() {
				So(testutil.ToFloat64(m.tracksRejected), ShouldEqual, 2)
				So(testutil.ToFloat64(m.tracksTooShort), ShouldEqual, 3)
				So(testutil.ToFloat64(m.pairs.WithLabelValues("true")), ShouldEqual, 4)
				So(testutil.ToFloat64(m.pairs.WithLabelValues("conflict")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.cells.WithLabelValues("scored")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.itemErrors.WithLabelValues("fit")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.modelVersion), ShouldEqual, 5)
				So(testutil.ToFloat64(m.workers), ShouldEqual, 8)
				So(testutil.CollectAndCount(m.fitDuration), ShouldEqual, 1)
			})

			Convey("And they can be written to a textfile", func() {
				path := filepath.Join(t.TempDir(), "mitosis.prom")
				So(m.WriteToTextfile(path), ShouldBeNil)
				raw, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				text := string(raw)
				So(strings.Contains(text, `mitosis_pairing_pairs_total{run="r1",status="true"} 4`), ShouldBeTrue)
				So(strings.Contains(text, "mitosis_batch_workers"), ShouldBeTrue)
			})
		})
	})
}

func TestNilManager(t *testing.T) {
	Convey("Given a nil manager", t, func() {
		var m *Manager

		Convey("Then every method is a no-op", func() {
			So(func() {
				m.TracksIngested(1, 1)
				m.PairsObserved("true", 1)
				m.CellObserved("scored")
				m.ItemFailed("fit")
				m.FitObserved(time.Second)
				m.BatchFinished(time.Second, 1, 1)
			}, ShouldNotPanic)
			So(m.Registry(), ShouldBeNil)
			So(m.WriteToTextfile("/nonexistent/x.prom"), ShouldBeNil)
		})
	})
}

func TestOptions(t *testing.T) {
	Convey("Given custom options", t, func() {
		m := NewManager(WithNamespace("cells"), WithFitBuckets([]float64{0.1, 1}))
		m.ItemFailed("pair")

		Convey("Then metric names use the namespace", func() {
			n, err := testutil.GatherAndCount(m.Registry(), "cells_batch_item_errors_total")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})
	})
}
