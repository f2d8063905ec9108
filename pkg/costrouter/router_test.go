package costrouter

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/ports"
)

var _ = Describe("Router", func() {
	var r *Router

	BeforeEach(func() {
		r = NewRouter(DefaultProfiles(), NewEnvelope(10, time.Hour), NewEnvelope(100, 24*time.Hour))
	})

	It("picks the cheapest tier that meets the confidence bar", func() {
		sel, err := r.Select(0.5, 1.0)
		Expect(err).ToNot(HaveOccurred())
		Expect(sel.Tier).To(Equal(ports.TierFastCheap))
	})

	It("skips cheaper tiers that cannot meet the confidence bar", func() {
		sel, err := r.Select(0.8, 1.0)
		Expect(err).ToNot(HaveOccurred())
		Expect(sel.Tier).To(Equal(ports.TierSlowAccurate))
	})

	It("rejects a confidence bar no declared tier can meet", func() {
		_, err := r.Select(0.99, 1.0)
		Expect(err).To(HaveOccurred())
		Expect(apperrors.Is(err, apperrors.ErrorTypeValidation)).To(BeTrue())
	})

	It("emits a budget error and does not reserve when the hourly envelope is exhausted", func() {
		tiny := NewRouter(DefaultProfiles(), NewEnvelope(0.001, time.Hour), NewEnvelope(100, 24*time.Hour))
		_, err := tiny.Select(0.5, 1.0)
		Expect(err).To(HaveOccurred())
		Expect(apperrors.Is(err, apperrors.ErrorTypeBudget)).To(BeTrue())
		Expect(tiny.Hourly.Remaining()).To(BeNumerically("==", 0.001))
	})

	It("rolls back the hourly reservation when the daily envelope denies", func() {
		hourly := NewEnvelope(10, time.Hour)
		daily := NewEnvelope(0.001, 24*time.Hour)
		tiny := NewRouter(DefaultProfiles(), hourly, daily)

		before := hourly.Remaining()
		_, err := tiny.Select(0.5, 1.0)
		Expect(err).To(HaveOccurred())
		Expect(hourly.Remaining()).To(Equal(before), "hourly reservation must be rolled back on daily denial")
	})

	It("scales reserved cost by complexity", func() {
		sel, err := r.Select(0.5, 1.0)
		Expect(err).ToNot(HaveOccurred())
		baseline := sel.ReservedHourly

		hourly := NewEnvelope(10, time.Hour)
		daily := NewEnvelope(100, 24*time.Hour)
		scaled := NewRouter(DefaultProfiles(), hourly, daily)
		sel2, err := scaled.Select(0.5, 3.0)
		Expect(err).ToNot(HaveOccurred())
		Expect(sel2.ReservedHourly).To(BeNumerically("~", baseline*3, 1e-9))
	})

	It("commits actual cost and frees the difference from the reservation", func() {
		sel, err := r.Select(0.5, 1.0)
		Expect(err).ToNot(HaveOccurred())
		before := r.Hourly.Remaining()
		r.Commit(sel, sel.ReservedHourly/2)
		Expect(r.Hourly.Remaining()).To(BeNumerically(">", before))
	})
})
