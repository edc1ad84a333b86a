package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/scrobbler-proxy/config"
	"github.com/angeloszaimis/scrobbler-proxy/internal/upstream"
)

func setenv(name, value string) {
	Expect(os.Setenv(name, value)).To(Succeed())
	DeferCleanup(os.Unsetenv, name)
}

var _ = Describe("Config", func() {
	var (
		tempDir string
		prevDir string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		prevDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tempDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(prevDir)).To(Succeed())
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with valid config file", func() {
			var configPath string

			BeforeEach(func() {
				configContent := `
server:
  address: ":9090"
  environment: "prod"

logging:
  level: "debug"

lastfm:
  api_key: "  secret  "
  user: "someone"
  tracks_limit: 5

upstream:
  timeout: "10s"

cors:
  allow_hostnames: "example.com; ;other.org"

wait:
  getinfo:
    ok: 120
    failed_with_fallback: 60
    failed_without_fallback: 10
  hibernate: 600

hibernate:
  fatal_codes: [26]
`
				configPath = filepath.Join(tempDir, "config.yaml")
				Expect(os.WriteFile(configPath, []byte(configContent), 0644)).To(Succeed())
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":9090"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvProd))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelDebug))
			})

			It("should load an explicit config file", func() {
				cfg, err := config.Load(configPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.LastFM.User).To(Equal("someone"))
			})

			It("should trim the API key and accept a numeric tracks limit", func() {
				cfg, err := config.Load(configPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.LastFM.APIKey).To(Equal("secret"))
				Expect(cfg.LastFM.TracksLimit).To(Equal("5"))
			})

			It("should build the upstream client config", func() {
				cfg, err := config.Load(configPath)
				Expect(err).NotTo(HaveOccurred())

				uc := cfg.UpstreamClientConfig()
				Expect(uc.APIKey).To(Equal("secret"))
				Expect(uc.User).To(Equal("someone"))
				Expect(uc.BaseURL).To(Equal(upstream.DefaultBaseURL))
				Expect(uc.Timeout).To(Equal(10 * time.Second))
			})

			It("should merge configured windows over defaults", func() {
				cfg, err := config.Load(configPath)
				Expect(err).NotTo(HaveOccurred())

				policy := cfg.WaitPolicy()
				getInfo := policy.Methods[upstream.MethodUserGetInfo]
				Expect(getInfo.OK).To(Equal(120 * time.Second))
				Expect(getInfo.FailedWithFallback).To(Equal(60 * time.Second))
				Expect(getInfo.FailedWithoutFallback).To(Equal(10 * time.Second))

				recent := policy.Methods[upstream.MethodUserGetRecentTracks]
				Expect(recent.OK).To(Equal(30 * time.Second))
				Expect(recent.FailedWithFallback).To(Equal(120 * time.Second))

				Expect(policy.Hibernate).To(Equal(10 * time.Minute))
			})

			It("should parse the CORS allow list and fatal codes", func() {
				cfg, err := config.Load(configPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.AllowList()).To(ConsistOf("example.com", "other.org"))
				Expect(cfg.Hibernate.FatalCodes).To(Equal([]int{26}))
			})
		})

		Context("without config file", func() {
			It("should use defaults", func() {
				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":8080"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
				Expect(cfg.LastFM.User).To(Equal(upstream.DefaultUser))
				Expect(cfg.LastFM.APIKey).To(BeEmpty())
				Expect(cfg.UpstreamTimeout()).To(BeZero())
				Expect(cfg.Hibernate.FatalCodes).To(Equal([]int{26, 29}))

				policy := cfg.WaitPolicy()
				Expect(policy.Methods[upstream.MethodUserGetInfo].OK).To(Equal(time.Hour))
				Expect(policy.Hibernate).To(Equal(time.Hour))
			})

			It("should fail for a missing explicit file", func() {
				_, err := config.Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with environment variables", func() {
			It("should read nested keys", func() {
				setenv("SERVER_ADDRESS", "127.0.0.1:7070")
				setenv("WAIT_GETRECENTTRACKS_OK", "45")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal("127.0.0.1:7070"))
				Expect(cfg.WaitPolicy().Methods[upstream.MethodUserGetRecentTracks].OK).To(Equal(45 * time.Second))
			})

			It("should honour legacy variable names", func() {
				setenv("audioscrobbler_apikey", "legacy-key")
				setenv("audioscrobbler_user", "legacy-user")
				setenv("audioscrobbler_trackslimit", "3")
				setenv("audioscrobbler_cors_allow_hostnames", "example.com")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.LastFM.APIKey).To(Equal("legacy-key"))
				Expect(cfg.LastFM.User).To(Equal("legacy-user"))
				Expect(cfg.LastFM.TracksLimit).To(Equal("3"))
				Expect(cfg.AllowList()).To(ConsistOf("example.com"))
			})

			It("should prefer the current name over the legacy one", func() {
				setenv("LASTFM_API_KEY", "current")
				setenv("audioscrobbler_apikey", "legacy")

				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.LastFM.APIKey).To(Equal("current"))
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			var err error
			cfg, err = config.Load("")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should accept the defaults", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should accept a missing API key", func() {
			cfg.LastFM.APIKey = ""
			Expect(cfg.Validate()).To(Succeed())
		})

		DescribeTable("rejects invalid values",
			func(mutate func(*config.Config)) {
				mutate(cfg)
				Expect(cfg.Validate()).NotTo(Succeed())
			},
			Entry("unknown environment", func(c *config.Config) { c.Server.Environment = "qa" }),
			Entry("address without port", func(c *config.Config) { c.Server.Address = "localhost" }),
			Entry("unknown log level", func(c *config.Config) { c.Logging.Level = "trace" }),
			Entry("empty user", func(c *config.Config) { c.LastFM.User = "" }),
			Entry("non numeric tracks limit", func(c *config.Config) { c.LastFM.TracksLimit = "ten" }),
			Entry("base url without scheme", func(c *config.Config) { c.LastFM.BaseURL = "ws.audioscrobbler.com" }),
			Entry("bad timeout", func(c *config.Config) { c.Upstream.Timeout = "soon" }),
			Entry("negative timeout", func(c *config.Config) { c.Upstream.Timeout = "-1s" }),
			Entry("negative window", func(c *config.Config) { c.Wait.GetInfo.OK = -1 }),
			Entry("zero hibernate", func(c *config.Config) { c.Wait.Hibernate = 0 }),
			Entry("invalid fatal code", func(c *config.Config) { c.Hibernate.FatalCodes = []int{0} }),
		)
	})
})
