package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/scrobbler-proxy/pkg/logger"
)

var _ = Describe("Logger", func() {
	ctx := context.Background()

	Describe("New", func() {
		It("should create a dev logger", func() {
			Expect(logger.New("info", false, "dev")).NotTo(BeNil())
		})

		It("should create a prod logger", func() {
			Expect(logger.New("info", true, "prod")).NotTo(BeNil())
		})
	})

	Describe("NewWithWriter", func() {
		var buf *bytes.Buffer

		BeforeEach(func() {
			buf = &bytes.Buffer{}
		})

		It("should write JSON with service and environment in prod", func() {
			log := logger.NewWithWriter(buf, "info", false, "prod")
			log.Info("hibernate entered", slog.Int("code", 29))

			var line map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &line)).To(Succeed())
			Expect(line).To(HaveKeyWithValue("msg", "hibernate entered"))
			Expect(line).To(HaveKeyWithValue("service", logger.ServiceName))
			Expect(line).To(HaveKeyWithValue("environment", "prod"))
			Expect(line).To(HaveKeyWithValue("code", BeNumerically("==", 29)))
		})

		It("should write text outside prod", func() {
			log := logger.NewWithWriter(buf, "info", false, "dev")
			log.Info("served")

			Expect(buf.String()).To(ContainSubstring("msg=served"))
			Expect(buf.String()).To(ContainSubstring("environment=dev"))
		})

		It("should drop records below the configured level", func() {
			log := logger.NewWithWriter(buf, "warn", false, "dev")
			log.Info("ignored")
			Expect(buf.Len()).To(BeZero())

			log.Warn("kept")
			Expect(buf.String()).To(ContainSubstring("kept"))
		})
	})

	Describe("ParseLevel", func() {
		DescribeTable("level names",
			func(name string, expected slog.Level) {
				Expect(logger.ParseLevel(name)).To(Equal(expected))
			},
			Entry("debug", "debug", slog.LevelDebug),
			Entry("info", "info", slog.LevelInfo),
			Entry("warn", "warn", slog.LevelWarn),
			Entry("warning alias", "WARNING", slog.LevelWarn),
			Entry("error", "error", slog.LevelError),
			Entry("invalid falls back to info", "invalid", slog.LevelInfo),
		)

		It("should respect the level through Enabled", func() {
			log := logger.New("error", false, "dev")
			Expect(log.Enabled(ctx, slog.LevelWarn)).To(BeFalse())
			Expect(log.Enabled(ctx, slog.LevelError)).To(BeTrue())
		})
	})
})
