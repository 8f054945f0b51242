package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mudler/LocalCircle/pkg/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func setenv(key, value string) {
	GinkgoT().Setenv(key, value)
}

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(body string) string {
		path := filepath.Join(dir, "localcircle.yaml")
		Expect(os.WriteFile(path, []byte(body), 0o644)).To(Succeed())
		return path
	}

	It("uses the defaults when no file exists", func() {
		cfg, err := config.Load(filepath.Join(dir, "missing.yaml"))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg).To(Equal(config.Default()))
		Expect(cfg.Lock.PollInterval).To(Equal(100 * time.Millisecond))
		Expect(cfg.Lock.Timeout).To(Equal(2 * time.Second))
		Expect(cfg.Tick.Schedule).To(Equal("@every 60s"))
	})

	It("reads sections and durations from YAML", func() {
		cfg, err := config.Load(write(`
storage:
  driver: pebble
  path: /tmp/circle
tick:
  schedule: "*/2 * * * *"
  max_private_wakes: 4
catchup:
  threshold: 90m
`))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Storage.Driver).To(Equal("pebble"))
		Expect(cfg.Storage.Path).To(Equal("/tmp/circle"))
		Expect(cfg.Tick.Schedule).To(Equal("*/2 * * * *"))
		Expect(cfg.Tick.MaxPrivateWakes).To(Equal(4))
		Expect(cfg.CatchUp.Threshold).To(Equal(90 * time.Minute))
		Expect(cfg.Tick.PrivateWakeProbability).To(Equal(0.3))
	})

	It("lets the environment override the file", func() {
		setenv("LOCALCIRCLE_LOCK_TIMEOUT", "3s")
		setenv("LOCALCIRCLE_MODEL", "qwen")
		setenv("LOCALCIRCLE_PRIVATE_WAKE_PROBABILITY", "0.5")
		setenv("LOCALCIRCLE_API_KEYS", "k1,k2")
		cfg, err := config.Load(write("lock:\n  timeout: 1s\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Lock.Timeout).To(Equal(3 * time.Second))
		Expect(cfg.Model.Model).To(Equal("qwen"))
		Expect(cfg.Tick.PrivateWakeProbability).To(Equal(0.5))
		Expect(cfg.Server.APIKeys).To(Equal([]string{"k1", "k2"}))
	})

	It("reports malformed environment values", func() {
		setenv("LOCALCIRCLE_MAX_HISTORY", "lots")
		_, err := config.Load("")
		Expect(err).To(MatchError(ContainSubstring("LOCALCIRCLE_MAX_HISTORY")))
	})

	It("collects every validation problem", func() {
		_, err := config.Load(write(`
storage:
  driver: sqlite
tick:
  schedule: "every now and then"
  group_wake_probability: 1.5
catchup:
  retention_cron: "every sunday"
`))
		var verr *config.ValidationError
		Expect(errors.As(err, &verr)).To(BeTrue())
		Expect(verr.Problems).To(HaveLen(4))
		Expect(err.Error()).To(HavePrefix("loading config: invalid configuration"))
		Expect(err.Error()).To(ContainSubstring("storage.driver"))
		Expect(err.Error()).To(ContainSubstring("tick.schedule"))
		Expect(err.Error()).To(ContainSubstring("catchup.retention_cron"))
	})

	It("requires an API key for gemini", func() {
		cfg := config.Default()
		cfg.Model.Provider = "gemini"
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("model.api_key")))
		cfg.Model.APIKey = "k"
		Expect(cfg.Validate()).To(Succeed())
	})

	It("describes the agent form with no group offered first", func() {
		form := config.AgentForm([]config.Choice{{Value: "g1", Label: "Bakers"}})
		Expect(form).To(HaveLen(2))

		var keys []string
		for _, section := range form {
			for _, f := range section.Fields {
				keys = append(keys, f.Key)
			}
		}
		Expect(keys).To(Equal([]string{"name", "persona", "signature", "avatar", "group_id"}))

		group := form[1].Fields[0]
		Expect(group.Input).To(Equal(config.InputSelect))
		Expect(group.Choices).To(Equal([]config.Choice{{Value: "", Label: "No group"}, {Value: "g1", Label: "Bakers"}}))
	})
})
