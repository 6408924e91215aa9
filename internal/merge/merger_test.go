package merge_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/postsim/internal/batch"
	"github.com/san-kum/postsim/internal/merge"
)

type appended struct {
	t    float64
	name string
	v    float64
}

type fakeAppender struct {
	rows    []appended
	failOn  float64
	failErr error
}

func (f *fakeAppender) Append(t float64, name string, v float64) error {
	if f.failErr != nil && t == f.failOn {
		return f.failErr
	}
	f.rows = append(f.rows, appended{t: t, name: name, v: v})
	return nil
}

func result(t float64, vals map[string]float64) *batch.PartialResult {
	return &batch.PartialResult{Time: t, Values: vals}
}

var _ = Describe("StoreMerger", func() {
	var (
		dst *fakeAppender
		m   *merge.StoreMerger
	)

	BeforeEach(func() {
		dst = &fakeAppender{}
		m = merge.NewStoreMerger(dst, []float64{0, 10, 20, 30, 40})
	})

	It("flushes out-of-order completions in ascending time order", func() {
		for _, t := range []float64{30, 10, 40, 0, 20} {
			Expect(m.Offer(result(t, map[string]float64{"x": t}))).To(Succeed())
		}
		Expect(m.Close()).To(Succeed())

		Expect(dst.rows).To(HaveLen(5))
		for i, want := range []float64{0, 10, 20, 30, 40} {
			Expect(dst.rows[i].t).To(Equal(want))
		}
	})

	It("holds later results until earlier items resolve", func() {
		Expect(m.Offer(result(40, map[string]float64{"x": 1}))).To(Succeed())
		Expect(m.Offer(result(10, map[string]float64{"x": 1}))).To(Succeed())
		Expect(dst.rows).To(BeEmpty(), "nothing may flush before time 0 resolves")

		Expect(m.Offer(result(0, map[string]float64{"x": 1}))).To(Succeed())
		Expect(dst.rows).To(HaveLen(2), "0 and 10 flush, 40 still waits on 20 and 30")
	})

	It("lets discarded items unblock the frontier", func() {
		Expect(m.Offer(result(10, map[string]float64{"x": 1}))).To(Succeed())
		Expect(dst.rows).To(BeEmpty())

		Expect(m.Discard(0)).To(Succeed())
		Expect(dst.rows).To(HaveLen(1))
		Expect(dst.rows[0].t).To(Equal(10.0))
	})

	It("omits failed items from the final store", func() {
		for _, t := range []float64{0, 10, 30, 40} {
			Expect(m.Offer(result(t, map[string]float64{"x": t}))).To(Succeed())
		}
		Expect(m.Discard(20)).To(Succeed())
		Expect(m.Close()).To(Succeed())

		times := make([]float64, len(dst.rows))
		for i, r := range dst.rows {
			times[i] = r.t
		}
		Expect(times).To(Equal([]float64{0, 10, 30, 40}))
	})

	It("resolves items sharing a time independently", func() {
		// two dumps at t=20 (restart overlap), one fails
		m = merge.NewStoreMerger(dst, []float64{0, 20, 20, 40})

		Expect(m.Offer(result(0, map[string]float64{"x": 1}))).To(Succeed())
		Expect(m.Discard(20)).To(Succeed())
		Expect(m.Offer(result(20, map[string]float64{"x": 2}))).To(Succeed())
		Expect(m.Offer(result(40, map[string]float64{"x": 3}))).To(Succeed())
		Expect(m.Close()).To(Succeed())

		times := make([]float64, len(dst.rows))
		for i, r := range dst.rows {
			times[i] = r.t
		}
		Expect(times).To(Equal([]float64{0, 20, 40}), "the surviving duplicate must still flush")
	})

	It("writes the variables of one result in deterministic name order", func() {
		Expect(m.Offer(result(0, map[string]float64{"b": 2, "a": 1, "c": 3}))).To(Succeed())
		for _, t := range []float64{10, 20, 30, 40} {
			Expect(m.Discard(t)).To(Succeed())
		}
		Expect(m.Close()).To(Succeed())

		Expect(dst.rows[0].name).To(Equal("a"))
		Expect(dst.rows[1].name).To(Equal("b"))
		Expect(dst.rows[2].name).To(Equal("c"))
	})

	It("keeps the buffer bounded by completion skew", func() {
		// in-order completions never buffer more than one result
		for _, t := range []float64{0, 10, 20, 30, 40} {
			Expect(m.Offer(result(t, map[string]float64{"x": 1}))).To(Succeed())
		}
		Expect(m.HighWater()).To(Equal(1))
	})

	It("propagates store append errors", func() {
		dst.failOn = 10
		dst.failErr = fmt.Errorf("%w", batch.ErrStoreOrderingViolation)

		Expect(m.Offer(result(0, map[string]float64{"x": 1}))).To(Succeed())
		err := m.Offer(result(10, map[string]float64{"x": 1}))
		Expect(err).To(MatchError(batch.ErrStoreOrderingViolation))
	})

	It("fails Close when expected items were never resolved", func() {
		Expect(m.Offer(result(0, map[string]float64{"x": 1}))).To(Succeed())
		Expect(m.Close()).NotTo(Succeed())
	})
})

var _ = Describe("Tally", func() {
	It("counts completions and discards", func() {
		tl := merge.NewTally()
		Expect(tl.Offer(&batch.PartialResult{ArtifactPath: "frame_000010.png"})).To(Succeed())
		Expect(tl.Offer(&batch.PartialResult{ArtifactPath: "frame_000020.png"})).To(Succeed())
		Expect(tl.Discard(30)).To(Succeed())
		Expect(tl.Close()).To(Succeed())

		Expect(tl.Completed).To(Equal(2))
		Expect(tl.Discarded).To(Equal(1))
	})
})
