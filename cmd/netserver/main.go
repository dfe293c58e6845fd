package main

import (
	"flag"
	"math/rand"
	"net/http"
	"os"

	"go.dedis.ch/onet/v3/log"

	"github.com/kafargo/neural-network-intro/api"
	"github.com/kafargo/neural-network-intro/config"
	"github.com/kafargo/neural-network-intro/dataset"
	"github.com/kafargo/neural-network-intro/jobs"
	"github.com/kafargo/neural-network-intro/persist"
	"github.com/kafargo/neural-network-intro/pubsub"
	"github.com/kafargo/neural-network-intro/registry"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	synthetic := flag.Bool("synthetic", false, "train on generated data instead of MNIST")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error(err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *synthetic {
		cfg.Synthetic = true
	}
	log.SetDebugVisible(cfg.Debug)

	data, err := loadData(cfg)
	if err != nil {
		log.Error("loading data:", err)
		os.Exit(1)
	}
	log.Lvlf1("data loaded: %d training samples, %d test samples", len(data.Train), len(data.Test))

	store, err := persist.NewStore(cfg.ModelDir)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	reg := registry.New(store, cfg.Defaults.LayerSizes, cfg.Defaults.Seed)
	broker := pubsub.NewBroker()
	mgr := jobs.NewManager(reg, broker, data.Train, data.Test)
	srv := api.NewServer(reg, mgr, pubsub.NewHub(broker), data.Test, cfg.Defaults)

	log.Lvl1("server listening on", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Handler()); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func loadData(cfg *config.Config) (*dataset.Data, error) {
	if cfg.Synthetic {
		in := cfg.Defaults.LayerSizes[0]
		out := cfg.Defaults.LayerSizes[len(cfg.Defaults.LayerSizes)-1]
		rng := rand.New(rand.NewSource(cfg.Defaults.Seed + 1))
		return &dataset.Data{
			Train: dataset.Synthetic(2000, in, out, rng),
			Test:  dataset.Synthetic(500, in, out, rng),
		}, nil
	}
	return dataset.LoadMNIST(cfg.DataDir)
}
