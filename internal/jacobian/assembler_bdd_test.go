package jacobian

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
	"github.com/san-kum/simgrad/internal/perturb"
	"github.com/san-kum/simgrad/internal/physics"
	"github.com/san-kum/simgrad/internal/snapshot"
)

var _ = Describe("Assembler", func() {
	ctx := context.Background()

	Context("on a free body (nq=7, nv=6, nu=3)", func() {
		var (
			eng *physics.Engine
			tr  transition
			j   *Jacobians
		)

		BeforeEach(func() {
			eng, tr = tumbling(GinkgoT())
			var err error
			j, err = NewAssembler(eng).Compute(ctx, tr.snap, tr.next, tr.reward, Options{TestMode: true})
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns matrices of the documented shapes", func() {
			dims := func(m mat.Matrix) []int { r, c := m.Dims(); return []int{r, c} }
			Expect(dims(j.State)).To(Equal([]int{13, 13}))
			Expect(dims(j.Control)).To(Equal([]int{13, 3}))
			Expect(dims(j.Reward)).To(Equal([]int{1, 13}))
			Expect(dims(j.RewardControl)).To(Equal([]int{1, 3}))
			Expect(dims(j.Position())).To(Equal([]int{13, 7}))
			Expect(dims(j.Velocity())).To(Equal([]int{13, 6}))
			Expect(dims(j.RewardPosition())).To(Equal([]int{1, 7}))
			Expect(dims(j.RewardVelocity())).To(Equal([]int{1, 6}))
		})

		It("leaves the quaternion scalar column at zero", func() {
			Expect(mat.Col(nil, 3, j.State)).To(HaveEach(BeZero()))
			Expect(j.Reward.At(0, 3)).To(BeZero())
		})

		It("has a non-trivial orientation block", func() {
			Expect(mat.Norm(j.State.Slice(0, 13, 4, 7), 2)).To(BeNumerically(">", 0.4))
		})

		It("perturbs every quaternion column on the unit sphere", func() {
			for i := 3; i < 7; i++ {
				p, err := perturb.Apply(eng.Model(), tr.snap, perturb.Position, i, 1e-6)
				Expect(err).NotTo(HaveOccurred())
				Expect(joint.QuatNorm(p.QPos[3:7])).To(BeNumerically("~", 1, 1e-12))
			}
		})

		It("does not depend on the column evaluation order", func() {
			n := 3 + 6 + 7
			order := make([]int, n)
			for i := range order {
				order[i] = (7*i + 5) % n
			}
			shuffled, err := NewAssembler(eng).Compute(ctx, tr.snap, tr.next, tr.reward, Options{Order: order})
			Expect(err).NotTo(HaveOccurred())
			Expect(mat.Equal(shuffled.State, j.State)).To(BeTrue())
			Expect(mat.Equal(shuffled.Control, j.Control)).To(BeTrue())
			Expect(mat.Equal(shuffled.Reward, j.Reward)).To(BeTrue())
		})

		It("gives the same result on parallel replicas", func() {
			par, err := NewAssembler(eng).Compute(ctx, tr.snap, tr.next, tr.reward, Options{Workers: 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(mat.Equal(par.State, j.State)).To(BeTrue())
			Expect(mat.Equal(par.Control, j.Control)).To(BeTrue())
			Expect(mat.Equal(par.RewardControl, j.RewardControl)).To(BeTrue())
		})

		It("leaves the snapshot untouched", func() {
			orig := tr.snap.Clone()
			_, err := NewAssembler(eng).Compute(ctx, tr.snap, tr.next, tr.reward, Options{Method: Central, Workers: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.snap).To(Equal(orig))
		})
	})

	Context("when a rollout diverges", func() {
		It("fails the whole computation at control index 2", func() {
			eng, _ := tumbling(GinkgoT())
			sim := &fragile{eng: eng, index: 2, value: 9}
			tr := step(GinkgoT(), sim, dynamo.Control{0.5, -0.2, 9})

			j, err := NewAssembler(sim).Compute(ctx, tr.snap, tr.next, tr.reward, Options{})
			Expect(j).To(BeNil())
			Expect(err).To(MatchError(dynamo.ErrSimulationDivergence))

			var se *dynamo.SimulationError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Channel).To(Equal("ctrl"))
			Expect(se.Index).To(Equal(2))
		})
	})

	Context("on a linear system", func() {
		var (
			eng   *physics.Engine
			plant *physics.Linear
		)

		BeforeEach(func() {
			eng, plant = oscillator(GinkgoT())
		})

		It("matches the analytic one-step Jacobian", func() {
			tr := step(GinkgoT(), eng, dynamo.Control{0.3, -0.6})
			j, err := NewAssembler(eng).Compute(ctx, tr.snap, tr.next, tr.reward, Options{TestMode: true})
			Expect(err).NotTo(HaveOccurred())

			a, b := plant.Discrete(dt)
			Expect(maxAbsDiff(j.State, a)).To(BeNumerically("<", 1e-7))
			Expect(maxAbsDiff(j.Control, b)).To(BeNumerically("<", 1e-7))
		})

		It("composes three one-step Jacobians into the lookahead-3 Jacobian", func() {
			u := dynamo.Control{0.3, -0.6}
			trs := []transition{
				step(GinkgoT(), eng, u),
				step(GinkgoT(), eng, u),
				step(GinkgoT(), eng, u),
			}

			asm := NewAssembler(eng)
			var steps []*Jacobians
			for _, tr := range trs {
				j, err := asm.Compute(ctx, tr.snap, tr.next, tr.reward, Options{})
				Expect(err).NotTo(HaveOccurred())
				steps = append(steps, j)
			}
			composed, err := Compose(steps...)
			Expect(err).NotTo(HaveOccurred())

			three, err := asm.Compute(ctx, trs[0].snap, nil, 0, Options{Lookahead: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(maxAbsDiff(three.State, composed)).To(BeNumerically("<", 1e-6))

			a, _ := plant.Discrete(dt)
			var a3 mat.Dense
			a3.Pow(a, 3)
			Expect(maxAbsDiff(three.State, &a3)).To(BeNumerically("<", 1e-6))
		})

		It("fails with ErrTrajectoryDivergence when the forward pass is not reproduced", func() {
			tr := step(GinkgoT(), eng, dynamo.Control{0.3, -0.6})
			wrong := tr.next.Clone()
			wrong[3] += 1e-3

			j, err := NewAssembler(eng).Compute(ctx, tr.snap, wrong, tr.reward, Options{TestMode: true})
			Expect(j).To(BeNil())
			Expect(err).To(MatchError(dynamo.ErrTrajectoryDivergence))

			var de *dynamo.DivergenceError
			Expect(errors.As(err, &de)).To(BeTrue())
			Expect(de.Field).To(Equal("qvel"))
			Expect(de.Index).To(Equal(1))
		})

		It("rejects a snapshot of another model", func() {
			other := engine(physics.NewPendulum())
			snap := snapshot.Capture(other)
			_, err := NewAssembler(eng).Compute(ctx, snap, nil, 0, Options{})
			Expect(err).To(MatchError(dynamo.ErrShapeMismatch))
		})

		DescribeTable("central differences stay close to the analytic Jacobian",
			func(eps float64) {
				tr := step(GinkgoT(), eng, dynamo.Control{0.3, -0.6})
				j, err := NewAssembler(eng).Compute(ctx, tr.snap, tr.next, tr.reward, Options{Method: Central, Epsilon: eps})
				Expect(err).NotTo(HaveOccurred())
				a, _ := plant.Discrete(dt)
				Expect(maxAbsDiff(j.State, a)).To(BeNumerically("<", 1e3*(math.Nextafter(1, 2)-1)/eps))
			},
			Entry("eps 1e-4", 1e-4),
			Entry("eps 1e-6", 1e-6),
		)
	})
})
