package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/scrobbler-proxy/internal/middleware"
)

var _ = Describe("RequestID", func() {
	var (
		seen    string
		handler http.Handler
	)

	BeforeEach(func() {
		seen = ""
		handler = middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = middleware.GetRequestID(r.Context())
		}))
	})

	It("should generate a UUID when none is given", func() {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Header().Get(middleware.RequestIDHeader)).To(Equal(seen))
	})

	It("should keep the caller's id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		Expect(seen).To(Equal("abc-123"))
		Expect(w.Header().Get(middleware.RequestIDHeader)).To(Equal("abc-123"))
	})

	It("should return empty for a bare context", func() {
		Expect(middleware.GetRequestID(context.Background())).To(BeEmpty())
	})
})
