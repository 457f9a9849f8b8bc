package internal

import (
	"encoding/json"
	"log"
	"os"

	"github.com/haatos/securegate/internal/util"
)

var Config *Configuration

type Configuration struct {
	RunnerSlots        int64 `json:"runner_slots"`
	QueueSize          int64 `json:"queue_size"`
	CacheCapacityMB    int64 `json:"cache_capacity_mb"`
	ProbeRetries       int64 `json:"probe_retries"`
	ProbeIntervalS     int64 `json:"probe_interval_seconds"`
	ProbeInitialDelayS int64 `json:"probe_initial_delay_seconds"`
}

func InitializeConfiguration() {
	Config = &Configuration{
		RunnerSlots:        2,
		QueueSize:          3,
		CacheCapacityMB:    512,
		ProbeRetries:       5,
		ProbeIntervalS:     10,
		ProbeInitialDelayS: 60,
	}

	configFileExists, _ := util.PathExists("config.json")
	if !configFileExists {
		b, err := json.MarshalIndent(Config, "", "    ")
		if err != nil {
			log.Fatal(err)
		}
		configFile, err := os.Create("config.json")
		if err != nil {
			log.Fatal(err)
		}
		if _, err := configFile.Write(b); err != nil {
			log.Fatal(err)
		}
	} else {
		configBytes, err := os.ReadFile("config.json")
		if err != nil {
			log.Fatal(err)
		}
		if err := json.Unmarshal(configBytes, &Config); err != nil {
			log.Fatal(err)
		}
	}
}

func UpdateConfiguration(config *Configuration) error {
	b, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return err
	}

	configFile, err := os.Create("config.json")
	if err != nil {
		return err
	}

	if _, err := configFile.Write(b); err != nil {
		return err
	}

	Config = config

	return nil
}
