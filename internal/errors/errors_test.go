package errors

import (
	"errors"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Structured Errors Suite")
}

var _ = Describe("AppError", func() {
	Context("basic error creation", func() {
		It("should create error with correct properties", func() {
			err := New(ErrorTypeValidation, "test message")

			Expect(err.Type).To(Equal(ErrorTypeValidation))
			Expect(err.Message).To(Equal("test message"))
			Expect(err.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(err.Details).To(BeEmpty())
			Expect(err.Cause).To(BeNil())
		})

		It("should implement the error interface", func() {
			err := New(ErrorTypeValidation, "test message")
			Expect(err.Error()).To(Equal("validation: test message"))
		})

		It("should include details in the error string when present", func() {
			err := New(ErrorTypeValidation, "test message").WithDetails("extra info")
			Expect(err.Error()).To(Equal("validation: test message (extra info)"))
		})
	})

	Context("error wrapping", func() {
		It("should wrap an underlying error", func() {
			originalErr := errors.New("original error")
			wrapped := Wrap(originalErr, ErrorTypeDatabase, "operation failed")

			Expect(wrapped.Type).To(Equal(ErrorTypeDatabase))
			Expect(wrapped.Cause).To(Equal(originalErr))
			Expect(wrapped.Unwrap()).To(Equal(originalErr))
		})
	})

	Context("domain-specific kinds", func() {
		It("maps quorum errors to 503", func() {
			err := NewQuorumError("inc-1", 3)
			Expect(err.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(err.Type).To(Equal(ErrorTypeQuorum))
		})

		It("maps budget errors to 429 and carries cost details", func() {
			err := NewBudgetError("hourly", 12.5, 0)
			Expect(err.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(err.Details).To(ContainSubstring("cost=12.5000"))
		})

		It("maps conflict errors to 409 with expected/actual versions", func() {
			err := NewConflictError("incident", 5, 4)
			Expect(err.StatusCode).To(Equal(http.StatusConflict))
			Expect(err.Error()).To(ContainSubstring("expected 5, found 4"))
		})
	})

	Describe("Is", func() {
		It("matches the wrapped type", func() {
			err := NewIntegrityError("inc-1")
			Expect(Is(err, ErrorTypeIntegrity)).To(BeTrue())
			Expect(Is(err, ErrorTypeBudget)).To(BeFalse())
		})

		It("returns false for non-AppError values", func() {
			Expect(Is(errors.New("plain"), ErrorTypeInternal)).To(BeFalse())
		})
	})
})
